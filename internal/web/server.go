// Package web provides the monitoring HTTP surface served in watch mode.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/consolidator/internal/core"
	"github.com/JonMunkholm/consolidator/internal/store"
	weblog "github.com/JonMunkholm/consolidator/internal/web/middleware"
)

// SummarySource reports the state of every partition.
type SummarySource interface {
	Summary() (store.Summary, error)
}

// RunSource reports the most recent completed run.
type RunSource interface {
	LastRun() (core.RunReport, bool)
}

// Server is the monitoring HTTP server.
type Server struct {
	summary SummarySource
	runs    RunSource
	metrics http.Handler
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server. A nil metrics handler leaves /metrics unrouted.
func NewServer(summary SummarySource, runs RunSource, metrics http.Handler) *Server {
	s := &Server{
		summary: summary,
		runs:    runs,
		metrics: metrics,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(weblog.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/summary", s.handleSummary)
	s.router.Get("/runs/last", s.handleLastRun)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("monitor listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.summary.Summary()
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	report, ok := s.runs.LastRun()
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{
			Error:   "no completed run",
			Message: "No run has completed yet",
			Code:    "RUN404",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
