package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	ai "github.com/teranos/ghostwrite/ai/provider"
	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/server"
	"github.com/teranos/ghostwrite/version"
)

// StatusCmd shows process, host and configuration status
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show process and configuration status",
	Long: `Show memory use, the resolved provider, where configuration came from
and whether a server is answering on the metrics address.`,
	RunE: runStatus,
}

var statusJSON bool

func init() {
	StatusCmd.Flags().BoolVarP(&statusJSON, "json", "j", false, "Output as JSON")
}

// status is the status command output.
type status struct {
	Version   version.Info   `json:"version"`
	PID       int32          `json:"pid"`
	RSS       uint64         `json:"rss_bytes"`
	MemTotal  uint64         `json:"mem_total_bytes"`
	MemAvail  uint64         `json:"mem_available_bytes"`
	Provider  string         `json:"provider"`
	Available []string       `json:"available_providers"`
	Strategy  string         `json:"strategy"`
	Transport string         `json:"transport"`
	Database  string         `json:"database"`
	Sources   map[string]int `json:"config_sources"`
	Files     []string       `json:"config_files"`
	Server    *server.Health `json:"server,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	s, err := collectStatus(cfg)
	if err != nil {
		return err
	}
	s.Server = probeServer(cfg.Server.MetricsAddress)

	if statusJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal status")
		}
		fmt.Println(string(data))
		return nil
	}
	return renderStatus(s)
}

func collectStatus(cfg *am.Config) (*status, error) {
	s := &status{
		Version:   version.Get(),
		PID:       int32(os.Getpid()),
		Provider:  string(ai.Resolve(cfg, ai.Provider(cfg.Provider))),
		Strategy:  cfg.Completion.Strategy,
		Transport: cfg.Server.Transport,
		Database:  cfg.GetDatabasePath(),
		Sources:   am.GetConfigSummary(),
		Files:     am.ExistingConfigFiles(),
	}
	for _, p := range ai.GetAvailableProviders(cfg) {
		s.Available = append(s.Available, string(p))
	}

	proc, err := process.NewProcess(s.PID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to inspect process")
	}
	if info, err := proc.MemoryInfo(); err == nil {
		s.RSS = info.RSS
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get memory stats")
	}
	s.MemTotal, s.MemAvail = vm.Total, vm.Available
	return s, nil
}

// probeServer asks a running server for /healthz. It returns nil when
// nothing answers.
func probeServer(addr string) *server.Health {
	if addr == "" {
		return nil
	}
	client := &http.Client{Timeout: time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var h server.Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil
	}
	return &h
}

func renderStatus(s *status) error {
	pterm.DefaultSection.Println("ghostwrite")
	pterm.Println(s.Version.String())

	rows := pterm.TableData{
		{"Setting", "Value"},
		{"Provider", s.Provider},
		{"Available", strings.Join(s.Available, ", ")},
		{"Strategy", s.Strategy},
		{"Transport", s.Transport},
		{"Database", s.Database},
		{"Memory", fmt.Sprintf("%s available of %s", humanBytes(s.MemAvail), humanBytes(s.MemTotal))},
		{"CLI RSS", humanBytes(s.RSS)},
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return errors.Wrap(err, "render status table")
	}

	pterm.DefaultSection.Println("Configuration sources")
	sources := make([]string, 0, len(s.Sources))
	for src := range s.Sources {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		pterm.Printf("  %-12s %d settings\n", src, s.Sources[src])
	}
	for _, f := range s.Files {
		pterm.Printf("  file: %s\n", f)
	}

	pterm.DefaultSection.Println("Server")
	if s.Server == nil {
		pterm.Info.Println("No server answering on the metrics address")
		return nil
	}
	pterm.Success.Printf("Up %s, %d connections, %d open documents (%s)\n",
		(time.Duration(s.Server.Uptime) * time.Second).String(),
		s.Server.Connections, s.Server.Documents, s.Server.Version)
	return nil
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
