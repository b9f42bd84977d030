// Package httpserver builds the API server with timeouts derived from the
// configured request budget.
package httpserver

import (
	"net/http"
	"time"

	"covault/internal/platform/config"
)

// New builds the API server. The write deadline trails the request timeout so
// the middleware deadline fires and produces a response before the connection
// is cut.
func New(cfg config.ServerConfig, handler http.Handler) *http.Server {
	requestBudget := cfg.RequestTimeout
	if requestBudget <= 0 {
		requestBudget = 30 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       requestBudget,
		WriteTimeout:      requestBudget + 5*time.Second,
		IdleTimeout:       time.Minute,
	}
}
