package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/ghostwrite/ai/tracker"
	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/completion/telemetry"
	"github.com/teranos/ghostwrite/errors"
)

// StatsCmd reports completion telemetry and provider usage
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show completion and provider usage statistics",
	Long: `Summarize persisted completion events and provider usage.

Completion events are only recorded with telemetry.enabled and
telemetry.persist set.

Examples:
  ghostwrite stats                # last 24 hours
  ghostwrite stats --since 7d     # last week
  ghostwrite stats --recent 10    # plus the 10 latest events`,
	RunE: runStats,
}

var (
	statsSince  string
	statsRecent int
	statsDBPath string
	statsJSON   bool
)

func init() {
	StatsCmd.Flags().StringVar(&statsSince, "since", "24h", "Window to report, e.g. 90m, 24h, 7d")
	StatsCmd.Flags().IntVar(&statsRecent, "recent", 0, "Also list this many recent events")
	StatsCmd.Flags().StringVar(&statsDBPath, "db-path", "", "Database path (overrides database.path)")
	StatsCmd.Flags().BoolVarP(&statsJSON, "json", "j", false, "Output as JSON")
}

// report is the full stats output.
type report struct {
	Since      time.Time                `json:"since"`
	Completion *telemetry.Stats         `json:"completion"`
	Usage      *tracker.UsageStats      `json:"usage"`
	Models     []tracker.ModelBreakdown `json:"models"`
	Recent     []telemetry.Event        `json:"recent,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) error {
	window, err := parseWindow(statsSince)
	if err != nil {
		return err
	}
	since := time.Now().Add(-window)

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	database, err := openDatabase(cfg, statsDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()
	store := telemetry.NewStore(database)
	usage := tracker.NewUsageTracker(database, 0)

	r := report{Since: since}
	if r.Completion, err = store.Stats(ctx, since); err != nil {
		return err
	}
	if r.Usage, err = usage.GetUsageStats(ctx, since); err != nil {
		return err
	}
	if r.Models, err = usage.GetModelBreakdown(ctx, since); err != nil {
		return err
	}
	if statsRecent > 0 {
		if r.Recent, err = store.Recent(ctx, statsRecent); err != nil {
			return err
		}
	}

	if statsJSON {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal stats")
		}
		fmt.Println(string(data))
		return nil
	}
	return renderReport(r, statsSince)
}

// parseWindow accepts Go durations plus a whole-day suffix ("7d").
func parseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, errors.NewInvalidRequestError("invalid --since %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, errors.NewInvalidRequestError("invalid --since %q (use e.g. 90m, 24h, 7d)", s)
	}
	return d, nil
}

func renderReport(r report, label string) error {
	pterm.DefaultSection.Printf("Completions (last %s)", label)
	c := r.Completion
	rows := pterm.TableData{{"Event", "Count"}}
	for _, k := range telemetry.Kinds {
		rows = append(rows, []string{string(k), strconv.Itoa(c.Counts[k])})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(rows).Render(); err != nil {
		return errors.Wrap(err, "render completion table")
	}
	pterm.Printf("Acceptance rate: %.1f%%\n", c.AcceptanceRate*100)
	pterm.Printf("Average latency: %s\n", c.AvgLatency.Round(time.Millisecond))
	pterm.Printf("Accepted chars:  %d\n", c.AcceptedChars)
	pterm.Printf("Sessions:        %d\n", c.Sessions)

	pterm.DefaultSection.Println("Provider usage")
	u := r.Usage
	pterm.Printf("Requests: %d (%.1f%% successful)\n", u.TotalRequests, u.SuccessRate*100)
	pterm.Printf("Tokens:   %d\n", u.TotalTokens)
	pterm.Printf("Cost:     $%.4f\n", u.TotalCost)

	if len(r.Models) > 0 {
		models := pterm.TableData{{"Model", "Provider", "Requests", "Tokens", "Cost", "Avg ms"}}
		for _, m := range r.Models {
			avg := "-"
			if m.AvgResponseTimeMs != nil {
				avg = fmt.Sprintf("%.0f", *m.AvgResponseTimeMs)
			}
			models = append(models, []string{
				m.ModelName, m.ModelProvider,
				strconv.Itoa(m.RequestCount), strconv.Itoa(m.TotalTokens),
				fmt.Sprintf("$%.4f", m.TotalCost), avg,
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(models).Render(); err != nil {
			return errors.Wrap(err, "render model table")
		}
	}

	if len(r.Recent) > 0 {
		pterm.DefaultSection.Println("Recent events")
		recent := pterm.TableData{{"Time", "Kind", "Request", "Strategy", "URI"}}
		for _, e := range r.Recent {
			recent = append(recent, []string{
				e.Time.Local().Format(time.TimeOnly), string(e.Kind),
				strconv.FormatUint(e.RequestID, 10), e.Strategy, e.URI,
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(recent).Render(); err != nil {
			return errors.Wrap(err, "render recent table")
		}
	}
	return nil
}
