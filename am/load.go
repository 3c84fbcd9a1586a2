package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/teranos/ghostwrite/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
	loadMu        sync.Mutex
)

// ConfigSources records which file or variable supplied each flattened key
// during the most recent load. Keys absent from the map come from defaults.
var ConfigSources = map[string]SourceInfo{}

// Load reads the ghostwrite configuration using Viper
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViperLocked()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViperLocked()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	if err := CheckFile(configPath); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Defaults only; environment is not consulted for explicit files
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// CheckFile parses a TOML file strictly and rejects keys ghostwrite does not know.
// Viper silently ignores unknown keys, so typos would otherwise go unnoticed.
func CheckFile(configPath string) error {
	var raw Config
	md, err := toml.DecodeFile(configPath, &raw)
	if err != nil {
		return errors.Wrapf(err, "invalid TOML in %s", configPath)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return errors.WithHint(
			errors.Newf("unknown keys in %s: %s", configPath, strings.Join(keys, ", ")),
			"run 'ghostwrite am show' to list supported settings",
		)
	}
	return nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViperLocked initializes Viper with configuration sources and defaults.
// Caller holds loadMu.
func initViperLocked() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("GHOSTWRITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)

	SetDefaults(v)

	// Precedence: system -> user -> project -> env vars
	ConfigSources = mergeConfigFiles(v)

	viperInstance = v
	return v
}

// configFile pairs a candidate config path with its source kind
type configFile struct {
	path   string
	source ConfigSource
}

// findProjectConfig searches for am.toml by walking up the directory tree.
// Returns the path to the first file found, or empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// UserConfigDir returns ~/.ghostwrite
func UserConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".ghostwrite")
}

// candidateConfigFiles lists config files from lowest to highest precedence
func candidateConfigFiles() []configFile {
	files := []configFile{
		{path: "/etc/ghostwrite/am.toml", source: SourceSystem},
		{path: filepath.Join(UserConfigDir(), "am.toml"), source: SourceUser},
		{path: filepath.Join(UserConfigDir(), UIConfigFileName), source: SourceUserUI},
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		files = append(files, configFile{path: projectConfig, source: SourceProject})
	}
	return files
}

// ExistingConfigFiles returns the config files present on disk, lowest
// precedence first.
func ExistingConfigFiles() []string {
	var paths []string
	for _, cf := range candidateConfigFiles() {
		if _, err := os.Stat(cf.path); err == nil {
			paths = append(paths, cf.path)
		}
	}
	return paths
}

// mergeConfigFiles merges configuration files in precedence order and
// returns where each flattened key came from.
func mergeConfigFiles(v *viper.Viper) map[string]SourceInfo {
	sources := make(map[string]SourceInfo)

	for _, cf := range candidateConfigFiles() {
		if _, err := os.Stat(cf.path); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(cf.path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		settings := tempViper.AllSettings()
		// MergeConfigMap keeps files below environment variables in precedence
		if err := v.MergeConfigMap(settings); err != nil {
			continue
		}
		markSettingsFromSource(settings, "", SourceInfo{Source: cf.source, Path: cf.path}, sources)
	}

	return sources
}

// markSettingsFromSource records info for every leaf key in settings.
// Later calls overwrite earlier ones, matching merge precedence.
func markSettingsFromSource(settings map[string]interface{}, prefix string, info SourceInfo, sources map[string]SourceInfo) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			markSettingsFromSource(nested, fullKey, info, sources)
			continue
		}
		sources[fullKey] = info
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	return GetViper().Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	return GetViper().GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	return GetViper().GetBool(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	return GetViper().GetInt(key)
}

// GetFloat64 returns a configuration value as float64 using dot notation
func GetFloat64(key string) float64 {
	return GetViper().GetFloat64(key)
}

// GetDatabasePath returns the configured database path
func GetDatabasePath() (string, error) {
	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.GetDatabasePath(), nil
}

// GetServerConfig returns the server section of the loaded configuration,
// falling back to defaults when loading fails.
func GetServerConfig() ServerConfig {
	config, err := Load()
	if err != nil {
		v := viper.New()
		SetDefaults(v)
		fallback, _ := LoadWithViper(v)
		if fallback == nil {
			return ServerConfig{}
		}
		return fallback.Server
	}
	return config.Server
}
