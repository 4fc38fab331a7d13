// Package httpapi wires the webhook endpoint, health/readiness checks, and
// metrics exposition behind a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/archon-run/orchestrator-pipeline/internal/logging"
	"github.com/archon-run/orchestrator-pipeline/internal/webhook"
)

// HealthChecker is satisfied by store.Repository and any other dependency
// readiness should verify.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config configures the HTTP server.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the orchestrator's HTTP surface: the GitHub webhook endpoint,
// liveness/readiness probes, and a Prometheus scrape endpoint.
type Server struct {
	router          *chi.Mux
	server          *http.Server
	db              HealthChecker
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// New builds a Server. dispatch and dedup back the webhook handler; db
// backs the readiness probe; registry is scraped at /metrics.
func New(cfg Config, db HealthChecker, dedup webhook.Deduper, dispatch webhook.DispatchFunc, registry *prometheus.Registry, logger *zap.Logger) *Server {
	logger = logger.With(zap.String("component", "httpapi"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logging.HTTPMiddleware(logger))

	s := &Server{
		router:          r,
		db:              db,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	r.Post("/webhooks/github", webhook.NewHandler(logger, dedup, dispatch))
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return s
}

// Start runs the server until it is shut down. It never returns
// http.ErrServerClosed as an error.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.HealthCheck(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
