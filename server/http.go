package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teranos/ghostwrite/version"
)

// Health is the /healthz payload.
type Health struct {
	Status      string  `json:"status"`
	Version     string  `json:"version"`
	Commit      string  `json:"commit"`
	Uptime      float64 `json:"uptime_seconds"`
	Connections int     `json:"connections"`
	Documents   int     `json:"documents"`
}

// Health reports liveness and connection counts.
func (s *Server) Health() Health {
	info := version.Get()
	return Health{
		Status:      "ok",
		Version:     info.Version,
		Commit:      info.Short(),
		Uptime:      time.Since(s.started).Seconds(),
		Connections: s.Connections(),
		Documents:   s.Documents(),
	}
}

// MetricsMux serves /metrics and /healthz.
func (s *Server) MetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// WebSocketMux serves LSP over WebSocket at /lsp and at the root.
func (s *Server) WebSocketMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/lsp", s.ServeWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.ServeWS)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	if err := writeJSON(w, http.StatusOK, s.Health()); err != nil {
		s.log.Debugw("health response failed", "error", err)
	}
}
