package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/logger"
)

// UIConfigFileName is the file ghostwrite writes when settings change at runtime
const UIConfigFileName = "am_managed.toml"

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old backup", logger.FieldPath, back3, logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// GetUIConfigPath returns the path of the runtime-managed config file
func GetUIConfigPath() string {
	return filepath.Join(UserConfigDir(), UIConfigFileName)
}

// loadOrInitialize reads a TOML file into a map, or returns an empty map if it doesn't exist
func loadOrInitialize(configPath string) (map[string]interface{}, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create config directory")
	}

	config := make(map[string]interface{})
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read managed config")
	}
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to parse managed config")
	}
	return config, nil
}

// save writes the config with a rotating backup
func save(config map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write managed config")
	}

	return nil
}

// SetValue persists a dot-notation key to the managed config file
func SetValue(key string, value interface{}) error {
	return SetValueIn(GetUIConfigPath(), key, value)
}

// SetValueIn persists a dot-notation key to configPath, creating nested tables as needed
func SetValueIn(configPath, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return errors.NewInvalidRequestError("invalid config key %q", key)
		}
	}

	config, err := loadOrInitialize(configPath)
	if err != nil {
		return err
	}

	table := config
	for _, p := range parts[:len(parts)-1] {
		next, ok := table[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			table[p] = next
		}
		table = next
	}
	table[parts[len(parts)-1]] = value

	return save(config, configPath)
}

// UpdateCompletionStrategy persists the default completion strategy
func UpdateCompletionStrategy(strategy string) error {
	if !validStrategies[strategy] {
		return errors.NewInvalidRequestError("unknown strategy %q", strategy)
	}
	return SetValue("completion.strategy", strategy)
}

// UpdateLocalInferenceEnabled persists local_inference.enabled
func UpdateLocalInferenceEnabled(enabled bool) error {
	return SetValue("local_inference.enabled", enabled)
}

// UpdateLocalInferenceModel persists local_inference.model
func UpdateLocalInferenceModel(model string) error {
	return SetValue("local_inference.model", model)
}
