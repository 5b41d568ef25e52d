// Package httpserver exposes the ingestion engine's observability surface:
// a liveness probe and the Prometheus scrape endpoint, routed with chi the
// way the rest of this codebase's HTTP-facing components are.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/terrylica/exness-data-preprocess-sub000/internal/logging"
)

// Server is the observability HTTP server: /healthz and /metrics only, no
// ingestion control surface.
type Server struct {
	httpServer *http.Server
}

// New builds a Server listening on addr. healthCheck reports whether the
// process is ready to accept further orchestrator runs (e.g. no store
// currently mid-checkpoint).
func New(addr string, healthCheck func() error) *Server {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := healthCheck(); err != nil {
			logging.Warn().Err(err).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{httpServer: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Serve implements suture.Service: it runs the HTTP server until ctx is
// canceled, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
