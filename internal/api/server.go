// Package api exposes the HTTP interface for the ratings service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/benlen10/esrb-tool-v2/internal/metrics"
	"github.com/benlen10/esrb-tool-v2/internal/store"
)

// ScrapeRunner invokes the ingestion pipeline out-of-process and returns
// its captured error output on failure.
type ScrapeRunner func(ctx context.Context) ([]byte, error)

// Server wires HTTP handlers to the query store and the scrape trigger.
type Server struct {
	router         chi.Router
	store          store.QueryStore
	runScrape      ScrapeRunner
	triggerTimeout time.Duration
	logger         *zap.Logger
}

// defaultRouteTimeout bounds the query routes. The scrape trigger is not
// subject to it; its bound is the trigger timeout.
const defaultRouteTimeout = 60 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(
	queryStore store.QueryStore,
	runScrape ScrapeRunner,
	triggerTimeout time.Duration,
	logger *zap.Logger,
) *Server {
	return newServer(queryStore, runScrape, triggerTimeout, defaultRouteTimeout, logger)
}

func newServer(
	queryStore store.QueryStore,
	runScrape ScrapeRunner,
	triggerTimeout time.Duration,
	routeTimeout time.Duration,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if triggerTimeout <= 0 {
		triggerTimeout = 600 * time.Second
	}
	s := &Server{
		store:          queryStore,
		runScrape:      runScrape,
		triggerTimeout: triggerTimeout,
		logger:         logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(routeTimeout))

		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())

		r.Get("/api/ratings", s.listRatings)
		r.Get("/api/export", s.exportCSV)
		r.Get("/api/stats", s.getStats)
	})

	// A scrape run may take minutes; the handler enforces triggerTimeout on
	// the subprocess itself.
	r.Post("/api/fetch-new-data", s.triggerScrape)

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
	if _, err := s.store.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
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
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
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

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
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
