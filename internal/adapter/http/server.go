package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
)

// Scheduler is the view of the estimation service the endpoints expose.
type Scheduler interface {
	sharedobs.ReadinessChecker
	LastRun() (domain.RunSummary, bool)
}

// RunStore is the persisted history behind /runs/latest and /estimates.
type RunStore interface {
	LatestRun(ctx context.Context) (domain.RunSummary, error)
	Estimates(ctx context.Context, county string) (domain.CombinedResult, error)
}

// Server exposes health, readiness, run, estimate, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /runs/latest and
// /metrics routes. When store is non-nil, /runs/latest falls back to it
// before the first in-process run and /estimates serves its rows.
func NewServer(addr string, scheduler Scheduler, store RunStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(scheduler))
	mux.HandleFunc("GET /runs/latest", handleLastRun(scheduler, store, logger))
	mux.Handle("GET /metrics", promhttp.Handler())
	if store != nil {
		mux.HandleFunc("GET /estimates", handleEstimates(store, logger))
		mux.HandleFunc("GET /estimates/{county}", handleEstimates(store, logger))
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleLastRun(scheduler Scheduler, store RunStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if summary, ok := scheduler.LastRun(); ok {
			sharedobs.WriteJSON(w, http.StatusOK, summary)
			return
		}
		if store == nil {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no completed run"})
			return
		}

		summary, err := store.LatestRun(r.Context())
		switch {
		case errors.Is(err, domain.ErrNoRun):
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no completed run"})
		case err != nil:
			logger.Error("read stored run", "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "run store unavailable"})
		default:
			sharedobs.WriteJSON(w, http.StatusOK, summary)
		}
	}
}

func handleEstimates(store RunStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		county := r.PathValue("county")
		rows, err := store.Estimates(r.Context(), county)
		if err != nil {
			logger.Error("read stored estimates", "county", county, "error", err)
			sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "run store unavailable"})
			return
		}
		if county != "" && len(rows) == 0 {
			sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no estimates for " + county})
			return
		}
		if rows == nil {
			rows = domain.CombinedResult{}
		}
		sharedobs.WriteJSON(w, http.StatusOK, rows)
	}
}
