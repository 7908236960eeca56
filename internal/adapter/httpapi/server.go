// Package httpapi exposes the polar service over HTTP: log uploads, polar
// generation and retrieval per boat, plus health, readiness, and metrics.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sailpolar/polar-service/internal/domain"
	"github.com/sailpolar/polar-service/internal/observability"
	"github.com/sailpolar/polar-service/internal/polar"
)

// Library is the storage surface the API serves from.
type Library interface {
	AddLog(ctx context.Context, boat, filename string, r io.Reader) (string, error)
	ListLogs(ctx context.Context, boat string) ([]string, error)
	ListPolars(ctx context.Context, boat string) ([]domain.Summary, error)
	LatestPolar(ctx context.Context, boat string) (polar.Table, int, error)
	OpenPolar(ctx context.Context, boat string, version int) (io.ReadCloser, error)
}

// Generator runs a polar generation for one boat.
type Generator interface {
	Generate(ctx context.Context, boat string) (polar.Table, domain.Summary, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the boat/polar API and operational endpoints.
type Server struct {
	httpServer *http.Server
	library    Library
	generator  Generator
	logger     *slog.Logger
	metrics    *observability.Metrics
	apiToken   string
}

// NewServer builds the route table. An empty apiToken disables
// authentication; otherwise boat routes require a matching bearer token.
func NewServer(addr string, library Library, generator Generator, ready ReadinessChecker,
	apiToken string, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		library:   library,
		generator: generator,
		logger:    logger,
		metrics:   metrics,
		apiToken:  apiToken,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /boats/{boat}/logs", s.auth(s.handleUploadLogs))
	mux.HandleFunc("GET /boats/{boat}/logs", s.auth(s.handleListLogs))
	mux.HandleFunc("POST /boats/{boat}/polars", s.auth(s.handleGenerate))
	mux.HandleFunc("GET /boats/{boat}/polars", s.auth(s.handleListPolars))
	mux.HandleFunc("GET /boats/{boat}/polars/latest", s.auth(s.handleLatestPolar))
	mux.HandleFunc("GET /boats/{boat}/polars/{version}", s.auth(s.handleDownloadPolar))

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

// auth enforces the static bearer token on boat routes when configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.apiToken == "" {
		return next
	}
	expect := "Bearer " + s.apiToken
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expect)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
