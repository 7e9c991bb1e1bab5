// Package api exposes the ops HTTP interface: health, metrics, and
// read-only watcher introspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopassist/watchd/internal/storage/memory"
	"github.com/shopassist/watchd/internal/storage/postgres"
	"github.com/shopassist/watchd/internal/telemetry"
	"github.com/shopassist/watchd/internal/watcher"
)

// Server wires HTTP handlers to the watcher repository.
type Server struct {
	router chi.Router
	repo   watcher.Repository
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(repo watcher.Repository, logger *zap.Logger) *Server {
	s := &Server{
		repo:   repo,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/watchers", func(r chi.Router) {
			r.Get("/", s.listWatchers)
			r.Get("/{watcher_id}", s.getWatcher)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repo.List(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "repository unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listWatchers(w http.ResponseWriter, r *http.Request) {
	watchers, err := s.repo.List(r.Context())
	if err != nil {
		s.logger.Error("list watchers", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if watchers == nil {
		watchers = []watcher.Watcher{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"watchers": watchers})
}

func (s *Server) getWatcher(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "watcher_id")
	found, err := s.repo.Get(r.Context(), id)
	switch {
	case errors.Is(err, memory.ErrNotFound) || errors.Is(err, postgres.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "watcher not found")
	case err != nil:
		s.logger.Error("get watcher", zap.String("watcher_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		s.writeJSON(w, http.StatusOK, found)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
