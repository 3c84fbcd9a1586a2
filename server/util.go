package server

import (
	"net/http"
	"strings"

	"github.com/teranos/ghostwrite/logger"
)

// checkOrigin validates a WebSocket origin against the configured allowed
// origins. Prefix matching allows any port.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Editors and CLI clients connect without an Origin header.
	if origin == "" {
		return true
	}

	allowed := s.opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = defaultOrigins
	}
	for _, prefix := range allowed {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}

	s.log.Warnw("websocket origin rejected", "origin", origin, logger.FieldRemote, r.RemoteAddr)
	return false
}

var defaultOrigins = []string{
	"http://localhost",
	"https://localhost",
	"http://127.0.0.1",
	"https://127.0.0.1",
	"vscode-webview://",
}
