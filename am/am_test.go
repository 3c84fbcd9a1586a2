package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "ghostwrite.db", cfg.Database.Path)
	assert.Equal(t, "auto", cfg.Provider)
	assert.Equal(t, "fast", cfg.Completion.Strategy)
	assert.Equal(t, 50, cfg.Completion.DebounceMs)
	assert.Equal(t, 3, cfg.Completion.MinOffset)
	assert.True(t, cfg.Completion.AutoRedisplay)
	assert.Equal(t, 500, cfg.Completion.Cache.Size)
	assert.Equal(t, 30, cfg.Completion.Cache.TTLMinutes)
	assert.Equal(t, TransportStdio, cfg.Server.Transport)
	assert.False(t, cfg.LocalInference.Enabled)
	require.NotNil(t, cfg.OpenRouter.Temperature)
	assert.InDelta(t, 0.2, *cfg.OpenRouter.Temperature, 1e-9)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	neg := -0.5
	zero := 0
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"zero debounce is valid", func(c *Config) { c.Completion.DebounceMs = 0 }, ""},
		{"negative debounce", func(c *Config) { c.Completion.DebounceMs = -1 }, "completion.debounce_ms"},
		{"unknown strategy", func(c *Config) { c.Completion.Strategy = "clever" }, "completion.strategy"},
		{"unknown provider", func(c *Config) { c.Provider = "gemini" }, "provider"},
		{"unknown transport", func(c *Config) { c.Server.Transport = "tcp" }, "server.transport"},
		{"websocket needs address", func(c *Config) {
			c.Server.Transport = TransportWebSocket
			c.Server.Address = ""
		}, "server.address"},
		{"cache size zero when enabled", func(c *Config) { c.Completion.Cache.Size = 0 }, "completion.cache.size"},
		{"cache disabled ignores size", func(c *Config) {
			c.Completion.Cache.Enabled = false
			c.Completion.Cache.Size = 0
		}, ""},
		{"zero rate limit is unlimited", func(c *Config) { c.Completion.RateLimit.RequestsPerSecond = 0 }, ""},
		{"rate limit needs burst", func(c *Config) { c.Completion.RateLimit.Burst = 0 }, "completion.rate_limit.burst"},
		{"negative strategy timeout", func(c *Config) { c.Completion.Strategies.Reasoned.TimeoutMs = -5 }, "completion.strategies.reasoned.timeout_ms"},
		{"negative strategy temperature", func(c *Config) { c.Completion.Strategies.Fast.Temperature = &neg }, "completion.strategies.fast.temperature"},
		{"local inference needs model", func(c *Config) {
			c.LocalInference.Enabled = true
			c.LocalInference.Model = ""
		}, "local_inference.model"},
		{"openrouter max tokens zero", func(c *Config) { c.OpenRouter.MaxTokens = &zero }, "openrouter.max_tokens"},
		{"telemetry buffer zero", func(c *Config) { c.Telemetry.BufferSize = 0 }, "telemetry.buffer_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			cfg, err := LoadWithViper(v)
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := `
provider = "anthropic"

[completion]
strategy = "reasoned"
debounce_ms = 120

[completion.strategies.reasoned]
timeout_ms = 5000
model = "claude-3-5-sonnet-latest"

[server]
transport = "websocket"
address = "127.0.0.1:9999"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "reasoned", cfg.Completion.Strategy)
	assert.Equal(t, 120, cfg.Completion.DebounceMs)
	assert.Equal(t, 5000, cfg.Completion.Strategies.Reasoned.TimeoutMs)
	assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Completion.Strategies.Reasoned.Model)
	assert.Equal(t, TransportWebSocket, cfg.Server.Transport)
	// Untouched sections keep defaults
	assert.Equal(t, 500, cfg.Completion.Cache.Size)
	assert.NoError(t, cfg.Validate())
}

func TestCheckFileRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[completion]\nstrategyy = \"fast\"\n"), 0644))

	err := CheckFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion.strategyy")

	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestCheckFileRejectsMalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[completion\n"), 0644))

	assert.Error(t, CheckFile(path))
}

func TestLoadHonorsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	t.Setenv("GHOSTWRITE_COMPLETION_STRATEGY", "block_rewrite")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "block_rewrite", cfg.Completion.Strategy)
	assert.Equal(t, "sk-or-test", cfg.OpenRouter.APIKey)
}

func TestProjectConfigOverridesUser(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".ghostwrite"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ghostwrite", "am.toml"),
		[]byte("[completion]\nstrategy = \"reasoned\"\ndebounce_ms = 80\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "am.toml"),
		[]byte("[completion]\nstrategy = \"fast\"\n"), 0644))

	nested := filepath.Join(project, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0755))
	t.Chdir(nested)
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fast", cfg.Completion.Strategy)
	assert.Equal(t, 80, cfg.Completion.DebounceMs)
}

func TestExistingConfigFiles(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(project)

	assert.Empty(t, ExistingConfigFiles())

	userFile := filepath.Join(home, ".ghostwrite", "am.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userFile), 0755))
	require.NoError(t, os.WriteFile(userFile, []byte("provider = \"local\"\n"), 0644))
	projectFile := filepath.Join(project, "am.toml")
	require.NoError(t, os.WriteFile(projectFile, []byte("provider = \"auto\"\n"), 0644))

	files := ExistingConfigFiles()
	require.Len(t, files, 2)
	assert.Equal(t, userFile, files[0])
	assert.Equal(t, "am.toml", filepath.Base(files[1]))
}

func TestConfigAccessors(t *testing.T) {
	var cfg Config
	assert.Equal(t, "ghostwrite.db", cfg.GetDatabasePath())
	assert.Equal(t, "everforest", cfg.GetServerLogTheme())
	assert.Equal(t, DefaultMaxDocuments, cfg.GetMaxDocuments())
	assert.NotEmpty(t, cfg.GetServerAllowedOrigins())

	cfg.Server.AllowedOrigins = []string{"https://editor.example"}
	assert.Equal(t, []string{"https://editor.example"}, cfg.GetServerAllowedOrigins())
}
