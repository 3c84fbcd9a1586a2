package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage ghostwrite configuration",
	Long: `am - Manage ghostwrite configuration ("I am")

Configuration sources (later overrides earlier):
1. Built-in defaults
2. System config (/etc/ghostwrite/am.toml)
3. User config (~/.ghostwrite/am.toml)
4. Managed config (~/.ghostwrite/am_managed.toml, written by 'am set')
5. Project config (./am.toml, searched upward)
6. Environment variables (GHOSTWRITE_* prefix)

Examples:
  ghostwrite am show                          # Show current configuration
  ghostwrite am show --format json            # Show configuration as JSON
  ghostwrite am get completion.strategy       # Get one value
  ghostwrite am set completion.debounce_ms 80 # Persist one value
  ghostwrite am validate                      # Validate current configuration
  ghostwrite am where                         # Show where each value comes from`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration from all sources. API keys are masked.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a configuration value using dot notation (e.g. completion.strategy, server.address)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration value",
	Long: `Write a value to the managed config file (or --file), keeping three
rotating backups. Values are stored as booleans or numbers when they
parse as such. A running server picks the change up without a restart.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate the effective configuration, and strictly check each config file for unknown keys",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long:  "List every effective setting grouped by the file or variable that supplied it",
	RunE:  runAmWhere,
}

var (
	configFormat string
	amSetFile    string
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amSetCmd.Flags().StringVar(&amSetFile, "file", "", "Config file to write (default: managed config)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	settings := maskSecrets(am.GetViper().AllSettings())
	return writeSettings(cmd.OutOrStdout(), settings, configFormat)
}

func writeSettings(w io.Writer, settings map[string]any, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err

	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		_, err = fmt.Fprintf(w, "# ghostwrite configuration\n%s", data)
		return err

	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		_, err = fmt.Fprintf(w, "# ghostwrite configuration\n%s", data)
		return err

	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

// maskSecrets returns a copy of settings with API keys shortened.
func maskSecrets(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]any:
			out[k] = maskSecrets(val)
		case string:
			if strings.HasSuffix(k, "api_key") && val != "" {
				if len(val) <= 8 {
					val = "****"
				} else {
					val = val[:4] + "****"
				}
			}
			out[k] = val
		default:
			out[k] = v
		}
	}
	return out
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewNotFoundError("configuration key %q not found", key)
	}
	fmt.Fprintln(cmd.OutOrStdout(), am.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	if !am.GetViper().IsSet(key) {
		return errors.WithHint(
			errors.NewNotFoundError("configuration key %q not found", key),
			"run 'ghostwrite am show' to list supported settings",
		)
	}

	value := parseValue(raw)
	var err error
	if amSetFile != "" {
		err = am.SetValueIn(amSetFile, key, value)
	} else {
		err = am.SetValue(key, value)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to set %s", key)
	}

	am.Reset()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to reload config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.WithHint(errors.Wrap(err, "configuration is now invalid"),
			"fix the value with 'ghostwrite am set' or restore a .back1 file")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
	return nil
}

// parseValue keeps booleans and numbers typed in the written TOML.
func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	for _, path := range am.ExistingConfigFiles() {
		if err := am.CheckFile(path); err != nil {
			return err
		}
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return errors.Wrap(err, "failed to get config introspection")
	}
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(w, "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintln(w, "  2. [SYSTEM]   /etc/ghostwrite/am.toml")
	fmt.Fprintln(w, "  3. [USER]     ~/.ghostwrite/am.toml")
	fmt.Fprintln(w, "  4. [USER_UI]  ~/.ghostwrite/"+am.UIConfigFileName)
	fmt.Fprintln(w, "  5. [PROJECT]  ./am.toml (searches up directories)")
	fmt.Fprintln(w, "  6. [ENV]      GHOSTWRITE_* environment variables")
	fmt.Fprintln(w)

	type group struct {
		source   am.ConfigSource
		path     string
		settings []am.SettingInfo
	}
	groups := map[string]*group{}
	for _, s := range intro.Settings {
		key := string(s.Source) + "|" + s.SourcePath
		g, ok := groups[key]
		if !ok {
			g = &group{source: s.Source, path: s.SourcePath}
			groups[key] = g
		}
		g.settings = append(g.settings, s)
	}

	order := map[am.ConfigSource]int{
		am.SourceDefault:     0,
		am.SourceSystem:      1,
		am.SourceUser:        2,
		am.SourceUserUI:      3,
		am.SourceProject:     4,
		am.SourceEnvironment: 5,
	}
	sorted := make([]*group, 0, len(groups))
	for _, g := range groups {
		sorted = append(sorted, g)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if order[sorted[i].source] != order[sorted[j].source] {
			return order[sorted[i].source] < order[sorted[j].source]
		}
		return sorted[i].path < sorted[j].path
	})

	fmt.Fprintln(w, "Active configuration:")
	for _, g := range sorted {
		if g.source == am.SourceDefault {
			fmt.Fprintf(w, "\n%s: %d settings\n", g.source, len(g.settings))
		} else {
			fmt.Fprintf(w, "\n%s: %d settings from %s\n", g.source, len(g.settings), g.path)
		}
		for _, s := range g.settings {
			value := fmt.Sprintf("%v", s.Value)
			if len(value) > 50 {
				value = value[:47] + "..."
			}
			fmt.Fprintf(w, "  %s = %s\n", s.Key, value)
		}
	}
	return nil
}
