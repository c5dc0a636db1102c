package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /metrics and /healthz over HTTP while a run is in progress.
// Runs are short-lived, so scrapers should use a short interval.
type Server struct {
	server  *http.Server
	errChan chan error
}

// NewServer creates a metrics server on the specified address.
// Example address: ":9090" or "localhost:9090"
func NewServer(addr string) *Server {
	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: Handler(),
		},
		errChan: make(chan error, 1),
	}
}

// Handler returns the HTTP handler serving /metrics and /healthz.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start starts the metrics server in a goroutine.
// Returns immediately. Check Err() to detect startup failures.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errChan <- err
		}
	}()
}

// Err returns any error that occurred during server startup or operation.
// This is non-blocking and returns nil if no error has occurred.
func (s *Server) Err() error {
	select {
	case err := <-s.errChan:
		return err
	default:
		return nil
	}
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
