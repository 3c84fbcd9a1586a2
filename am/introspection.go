package am

import (
	"os"
	"sort"
	"strings"

	"github.com/teranos/ghostwrite/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/ghostwrite/am.toml
	SourceUser        ConfigSource = "user"        // ~/.ghostwrite/am.toml
	SourceUserUI      ConfigSource = "user_ui"     // ~/.ghostwrite/am_managed.toml
	SourceProject     ConfigSource = "project"     // project am.toml
	SourceEnvironment ConfigSource = "environment" // GHOSTWRITE_* env vars
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key"`
	Value      interface{}  `json:"value" yaml:"value"`
	Source     ConfigSource `json:"source" yaml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty"`
}

// ConfigIntrospection describes the active configuration
type ConfigIntrospection struct {
	Files    []string      `json:"files" yaml:"files"`
	Settings []SettingInfo `json:"settings" yaml:"settings"`
}

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// GetConfigIntrospection returns every effective setting with its source
func GetConfigIntrospection() (*ConfigIntrospection, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}
	v := GetViper()

	loadMu.Lock()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, s := range ConfigSources {
		sources[k] = s
	}
	loadMu.Unlock()

	introspection := &ConfigIntrospection{Settings: make([]SettingInfo, 0)}
	seen := map[string]bool{}
	for _, s := range sources {
		if !seen[s.Path] {
			seen[s.Path] = true
			introspection.Files = append(introspection.Files, s.Path)
		}
	}
	sort.Strings(introspection.Files)

	flattenSettingsWithSources(v.AllSettings(), "", introspection, sources)
	return introspection, nil
}

// flattenSettingsWithSources flattens settings and assigns sources from sourceMap
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, introspection *ConfigIntrospection, sourceMap map[string]SourceInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nestedMap, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nestedMap, fullKey, introspection, sourceMap)
			continue
		}

		sourceInfo := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			sourceInfo = si
		}

		envKey := EnvKey(fullKey)
		if envValue := os.Getenv(envKey); envValue != "" {
			sourceInfo = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		if isSensitiveKey(fullKey) {
			value = redact(value)
		}

		introspection.Settings = append(introspection.Settings, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     sourceInfo.Source,
			SourcePath: sourceInfo.Path,
		})
	}
}

// EnvKey returns the environment variable that overrides a dot-notation key
func EnvKey(key string) string {
	return "GHOSTWRITE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func isSensitiveKey(key string) bool {
	return strings.HasSuffix(key, "api_key")
}

func redact(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok || s == "" {
		return value
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}

// GetConfigSummary counts effective settings by source
func GetConfigSummary() map[string]int {
	summary := map[string]int{}
	introspection, err := GetConfigIntrospection()
	if err != nil {
		return summary
	}
	for _, setting := range introspection.Settings {
		summary[string(setting.Source)]++
	}
	return summary
}
