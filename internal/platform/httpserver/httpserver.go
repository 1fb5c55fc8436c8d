package httpserver

import (
	"net/http"
	"time"
)

// New builds the registry's HTTP server. Render responses carry whole
// SVG documents in one write, so the write timeout is sized for a full
// body rather than a streaming response.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
