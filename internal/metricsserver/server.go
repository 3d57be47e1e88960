// Package metricsserver exposes a tiny gorilla/mux-routed HTTP server for
// Prometheus scraping and liveness checks, grounded on the teacher's use of
// gorilla/mux for its HTTP routing and the metrics.enabled/path/port config
// section (internal/config/config.go's MetricsConfig).
package metricsserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls where the metrics server listens and what path it serves
// metrics on.
type Config struct {
	Addr string // e.g. ":9090"
	Path string // e.g. "/metrics", defaults to "/metrics"
	// WebSocketHandler, if non-nil, is mounted at /ws for trial-event
	// notification clients (internal/notify.Hub.HandleWebSocket).
	WebSocketHandler http.HandlerFunc
}

// Server wraps an http.Server exposing /metrics and /healthz.
type Server struct {
	http *http.Server
}

// New builds a Server; call Start to begin listening.
func New(cfg Config) *Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	if cfg.WebSocketHandler != nil {
		router.HandleFunc("/ws", cfg.WebSocketHandler)
	}

	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Start begins serving in the background. Callers should Shutdown on exit.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	return errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
