package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "ghostwrite.db")

	v.SetDefault("provider", "auto")

	// Local inference is opt-in; cloud keys drive auto-selection otherwise
	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "qwen2.5-coder:7b")
	v.SetDefault("local_inference.timeout_seconds", 30)

	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.max_tokens", 256)

	v.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("anthropic.max_tokens", 1024)

	v.SetDefault("completion.strategy", "fast")
	v.SetDefault("completion.auto_trigger", true)
	v.SetDefault("completion.debounce_ms", 50)
	v.SetDefault("completion.min_offset", 3)
	v.SetDefault("completion.auto_redisplay", true)
	v.SetDefault("completion.prefer_word_by_word", false)
	v.SetDefault("completion.cache.enabled", true)
	v.SetDefault("completion.cache.size", 500)
	v.SetDefault("completion.cache.ttl_minutes", 30)
	v.SetDefault("completion.rate_limit.requests_per_second", 4.0)
	v.SetDefault("completion.rate_limit.burst", 2)

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.buffer_size", 256)
	v.SetDefault("telemetry.persist", true)
	v.SetDefault("telemetry.tracing", false)

	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.address", DefaultServerAddress)
	v.SetDefault("server.metrics_address", DefaultMetricsAddress)
	v.SetDefault("server.max_documents", DefaultMaxDocuments)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
		"vscode-webview://",
	})
	v.SetDefault("server.log_theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds API keys and paths to environment variables.
// The unprefixed provider variables are accepted as well.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("openrouter.api_key", "GHOSTWRITE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("anthropic.api_key", "GHOSTWRITE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	v.BindEnv("database.path", "GHOSTWRITE_DATABASE_PATH")

	v.BindEnv("local_inference.enabled", "GHOSTWRITE_LOCAL_INFERENCE_ENABLED")
	v.BindEnv("local_inference.base_url", "GHOSTWRITE_LOCAL_INFERENCE_BASE_URL")
	v.BindEnv("local_inference.model", "GHOSTWRITE_LOCAL_INFERENCE_MODEL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "ghostwrite.db"
	}
	return c.Database.Path
}

// GetServerAllowedOrigins returns the allowed WebSocket origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{"http://localhost", "http://127.0.0.1"}
	}
	return c.Server.AllowedOrigins
}

// GetServerLogTheme returns the log theme (default: everforest)
func (c *Config) GetServerLogTheme() string {
	if c.Server.LogTheme == "" {
		return "everforest"
	}
	return c.Server.LogTheme
}

// GetMaxDocuments returns the per-connection document limit
func (c *Config) GetMaxDocuments() int {
	if c.Server.MaxDocuments <= 0 {
		return DefaultMaxDocuments
	}
	return c.Server.MaxDocuments
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Provider: %s, Strategy: %s, Transport: %s}",
		c.Database.Path, c.Provider, c.Completion.Strategy, c.Server.Transport)
}
