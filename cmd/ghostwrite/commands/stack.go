package commands

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	ai "github.com/teranos/ghostwrite/ai/provider"
	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/completion/cache"
	"github.com/teranos/ghostwrite/completion/provider"
	"github.com/teranos/ghostwrite/completion/session"
	"github.com/teranos/ghostwrite/completion/strategy"
	"github.com/teranos/ghostwrite/completion/telemetry"
	"github.com/teranos/ghostwrite/db"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/internal/tracing"
	"github.com/teranos/ghostwrite/logger"
)

// stack is everything a completion session needs below the transport.
type stack struct {
	cfg       *am.Config
	db        *sql.DB
	registry  *prometheus.Registry
	metrics   *telemetry.Metrics
	store     *telemetry.Store
	sink      *telemetry.Sink
	tracer    *tracing.Provider
	selection ai.Selection
	fetcher   *provider.Fetcher
	log       *zap.SugaredLogger
}

// stackOptions overrides parts of the stack; zero values build from config.
type stackOptions struct {
	DBPath    string
	Provider  string
	Verbosity int
	Client    ai.AIClient
}

// openDatabase opens and migrates the database at dbPath, or at the
// configured path when dbPath is empty.
func openDatabase(cfg *am.Config, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.GetDatabasePath()
	}
	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}

func buildStack(cfg *am.Config, opts stackOptions) (_ *stack, err error) {
	s := &stack{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		log:      logger.ComponentLogger("stack"),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = telemetry.NewMetrics(s.registry)

	s.db, err = openDatabase(cfg, opts.DBPath)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.Persist {
			s.store = telemetry.NewStore(s.db)
		}
		s.sink = telemetry.NewSink(telemetry.SinkConfig{
			Store:      s.store,
			Metrics:    s.metrics,
			BufferSize: cfg.Telemetry.BufferSize,
		})
	}

	if cfg.Telemetry.Tracing {
		s.tracer, err = tracing.NewProvider("ghostwrite", cfg.Telemetry.TraceFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to start tracing")
		}
	}

	if opts.Client != nil {
		s.selection = ai.Selection{Client: opts.Client, Provider: ai.Provider(opts.Provider)}
		if namer, ok := opts.Client.(ai.ModelNamer); ok {
			s.selection.Model = namer.Model()
		}
	} else {
		name := cfg.Provider
		if opts.Provider != "" {
			name = opts.Provider
		}
		p, perr := ai.ParseProvider(name)
		if perr != nil {
			return nil, perr
		}
		s.selection = ai.NewAIClientWithProvider(cfg, p, ai.ClientConfig{
			DB:        s.db,
			Verbosity: opts.Verbosity,
			Logger:    logger.ComponentLogger("ai"),
		})
	}

	var c *cache.Cache
	if cfg.Completion.Cache.Enabled {
		c = cache.New(cfg.Completion.Cache.Size, time.Duration(cfg.Completion.Cache.TTLMinutes)*time.Minute)
	}

	s.fetcher = provider.New(provider.Config{
		Client:     s.selection.Client,
		Strategies: strategy.FromConfig(cfg.Completion),
		Cache:      c,
		RateLimit:  rate.Limit(cfg.Completion.RateLimit.RequestsPerSecond),
		Burst:      cfg.Completion.RateLimit.Burst,
		Verbosity:  opts.Verbosity,
	})

	s.log.Infow("completion stack ready",
		logger.FieldProvider, s.selection.Provider,
		logger.FieldModel, s.selection.Model,
		logger.FieldStrategy, cfg.Completion.Strategy,
		"telemetry", cfg.Telemetry.Enabled,
		"tracing", cfg.Telemetry.Tracing)
	return s, nil
}

// sessionConfig is the session template for cfg on top of this stack.
func (s *stack) sessionConfig(cfg *am.Config) session.Config {
	sc := session.ConfigFrom(cfg.Completion, cfg.GetMaxDocuments())
	sc.Fetcher = s.fetcher
	sc.Metrics = s.metrics
	if s.sink != nil {
		sc.Telemetry = s.sink
	}
	return sc
}

// Close flushes telemetry and spans and closes the database.
func (s *stack) Close() {
	if s.sink != nil {
		s.sink.Close()
		if dropped := s.sink.Dropped(); dropped > 0 {
			s.log.Warnw("telemetry events dropped", logger.FieldCount, dropped)
		}
		s.sink = nil
	}
	if s.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.log.Warnw("trace shutdown failed", logger.FieldError, err)
		}
		cancel()
		s.tracer = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Warnw("database close failed", logger.FieldError, err)
		}
		s.db = nil
	}
}
