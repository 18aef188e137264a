// Package api exposes the read-only HTTP interface for the watcher service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fundwatch/internal/metrics"
	"fundwatch/internal/scrape"
)

// SnapshotSource provides a read-only view of the accumulated project set.
type SnapshotSource interface {
	Snapshot() map[string]scrape.ProjectRecord
}

// Server wires HTTP handlers to the store snapshot. It never triggers a run.
type Server struct {
	router chi.Router
	source SnapshotSource
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(source SnapshotSource, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{source: source, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/", s.listProjects)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) listProjects(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.source.Snapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Error("serialize snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "error serializing results")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write snapshot failed", zap.Error(err))
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The snapshot lives in memory; once the process is up it is servable.
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
