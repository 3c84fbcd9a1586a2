// Package server exposes completion sessions over the Language Server
// Protocol, on stdio or WebSocket, plus an HTTP endpoint for metrics.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/completion/session"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/logger"
)

const serverName = "ghostwrite"

// Options configures a Server.
type Options struct {
	// Session is the template for every connection's session manager.
	Session        session.Config
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil uses the default prometheus registry.
	Gatherer prometheus.Gatherer
	Logger   *zap.SugaredLogger
}

// Server creates one Handler per LSP connection and shares the completion
// stack between them.
type Server struct {
	opts    Options
	log     *zap.SugaredLogger
	started time.Time

	mu         sync.Mutex
	sessionCfg session.Config
	handlers   map[*Handler]struct{}

	connections atomic.Int64
	upgrader    websocket.Upgrader
}

// New creates a server.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		opts:       opts,
		log:        log,
		started:    time.Now(),
		sessionCfg: opts.Session,
		handlers:   make(map[*Handler]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// NewHandler registers a handler for a new connection.
func (s *Server) NewHandler() *Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.connections.Add(1)
	h := newHandler(s, s.sessionCfg, logger.ChildLogger(logger.ComponentLogger("lsp"), "conn", id))
	s.handlers[h] = struct{}{}
	return h
}

func (s *Server) release(h *Handler) {
	s.mu.Lock()
	delete(s.handlers, h)
	s.mu.Unlock()
}

// Reconfigure applies new session settings to live and future connections.
// The fetcher and telemetry of the template are kept.
func (s *Server) Reconfigure(cfg session.Config) {
	s.mu.Lock()
	cfg.Fetcher = s.sessionCfg.Fetcher
	cfg.Telemetry = s.sessionCfg.Telemetry
	cfg.Metrics = s.sessionCfg.Metrics
	s.sessionCfg = cfg
	live := make([]*Handler, 0, len(s.handlers))
	for h := range s.handlers {
		live = append(live, h)
	}
	s.mu.Unlock()

	for _, h := range live {
		h.sessions.Reconfigure(cfg)
	}
	s.log.Infow("session settings reloaded",
		logger.FieldStrategy, cfg.Strategy,
		"debounce_ms", cfg.Debounce.Milliseconds(),
		logger.FieldCount, len(live))
}

// Connections returns the number of live LSP connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Documents returns the number of open documents across connections.
func (s *Server) Documents() int {
	s.mu.Lock()
	live := make([]*Handler, 0, len(s.handlers))
	for h := range s.handlers {
		live = append(live, h)
	}
	s.mu.Unlock()

	n := 0
	for _, h := range live {
		n += h.sessions.Len()
	}
	return n
}

// Close ends every live connection's sessions.
func (s *Server) Close() {
	s.mu.Lock()
	live := make([]*Handler, 0, len(s.handlers))
	for h := range s.handlers {
		live = append(live, h)
	}
	s.mu.Unlock()
	for _, h := range live {
		h.Close()
	}
}

// ServeStdio serves one connection on stdin/stdout until the client
// disconnects or ctx is done.
func (s *Server) ServeStdio(ctx context.Context) error {
	h := s.NewHandler()
	defer h.Close()

	srv := glspserver.NewServer(h, serverName, false)
	done := make(chan error, 1)
	go func() { done <- srv.RunStdio() }()

	s.log.Infow("serving LSP on stdio")
	select {
	case err := <-done:
		return errors.Wrap(err, "stdio transport")
	case <-ctx.Done():
		return nil
	}
}

// ServeWS upgrades r and serves one LSP connection over it.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", logger.FieldRemote, r.RemoteAddr, logger.FieldError, err)
		return
	}

	h := s.NewHandler()
	defer h.Close()

	s.log.Infow("LSP connection opened", logger.FieldRemote, r.RemoteAddr)
	glspserver.NewServer(h, serverName, false).ServeWebSocket(conn)
	s.log.Infow("LSP connection closed", logger.FieldRemote, r.RemoteAddr)
}

// ListenAndServe runs an HTTP server on addr with handler until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return s.Serve(ctx, ln, handler)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("listening", logger.FieldAddress, ln.Addr().String())
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "serve %s", ln.Addr())
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.Wrapf(err, "shutdown %s", ln.Addr())
		}
		return nil
	}
}
