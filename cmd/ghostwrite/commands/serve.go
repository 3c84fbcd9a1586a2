package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/completion/strategy"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/logger"
	"github.com/teranos/ghostwrite/server"
)

// ServeCmd runs the language server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server", "lsp"},
	Short:   "Run the ghostwrite language server",
	Long: `Run the language server on stdio (the default, for editors that spawn it)
or on a WebSocket listener. Metrics and health are served on a separate
HTTP listener unless server.metrics_address is empty.

Changes to am.toml are applied to live connections without a restart.`,
	RunE: runServe,
}

var (
	serveTransport      string
	serveAddress        string
	serveMetricsAddress string
	serveDBPath         string
	serveProvider       string
	serveStrategy       string
	serveNoWatch        bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveTransport, "transport", "", "stdio or websocket (overrides server.transport)")
	ServeCmd.Flags().StringVar(&serveAddress, "address", "", "WebSocket listen address (overrides server.address)")
	ServeCmd.Flags().StringVar(&serveMetricsAddress, "metrics-address", "", "Metrics listen address (overrides server.metrics_address)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Database path (overrides database.path)")
	ServeCmd.Flags().StringVar(&serveProvider, "provider", "", "Provider: auto, local, openrouter, anthropic")
	ServeCmd.Flags().StringVar(&serveStrategy, "strategy", "", "Initial strategy: fast, reasoned, block_rewrite")
	ServeCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload configuration on file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	applyServeFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	logger.SetTheme(cfg.GetServerLogTheme())

	st, err := buildStack(cfg, stackOptions{DBPath: serveDBPath, Provider: serveProvider, Verbosity: verbosity})
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(server.Options{
		Session:        st.sessionConfig(cfg),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       st.registry,
	})
	defer srv.Close()

	if !serveNoWatch {
		stop := watchConfig(st, srv)
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.Server.MetricsAddress; addr != "" {
		g.Go(func() error {
			return srv.ListenAndServe(gctx, addr, srv.MetricsMux())
		})
	}

	switch cfg.Server.Transport {
	case am.TransportWebSocket:
		if verbosity > 0 || isTerminal() {
			pterm.Info.Printf("ghostwrite listening on ws://%s/lsp (%s via %s)\n",
				cfg.Server.Address, st.selection.Model, st.selection.Provider)
		}
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Server.Address, srv.WebSocketMux())
		})
	default:
		g.Go(func() error {
			err := srv.ServeStdio(gctx)
			// The editor closing stdio ends the process.
			cancel()
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func applyServeFlags(cfg *am.Config) {
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	if serveMetricsAddress != "" {
		cfg.Server.MetricsAddress = serveMetricsAddress
	}
	if serveStrategy != "" {
		cfg.Completion.Strategy = serveStrategy
	}
}

// watchConfig reloads strategy budgets and session settings when a config
// file changes. The returned func stops every watcher.
func watchConfig(st *stack, srv *server.Server) func() {
	log := logger.ComponentLogger("am")
	var watchers []*am.ConfigWatcher

	onReload := func(cfg *am.Config) error {
		applyServeFlags(cfg)
		st.fetcher.SetStrategies(strategy.FromConfig(cfg.Completion))
		srv.Reconfigure(st.sessionConfig(cfg))
		return nil
	}

	for _, path := range am.ExistingConfigFiles() {
		w, err := am.NewConfigWatcher(path)
		if err != nil {
			log.Warnw("config watch unavailable", logger.FieldPath, path, logger.FieldError, err)
			continue
		}
		w.OnReload(onReload)
		w.Start()
		watchers = append(watchers, w)
	}
	if len(watchers) > 0 {
		am.SetGlobalWatcher(watchers[len(watchers)-1])
	}

	return func() {
		for _, w := range watchers {
			if err := w.Stop(); err != nil {
				log.Debugw("config watcher stop failed", logger.FieldError, err)
			}
		}
	}
}

// isTerminal reports whether stdout is a terminal.
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
