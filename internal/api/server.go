// Package api exposes the read-only HTTP interface: health, metrics, and
// run history inspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/metrics"
	"github.com/rankscope/rankscope/internal/storage"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	requestTimeout  = 10 * time.Second
)

// Server wires HTTP handlers to the run store.
type Server struct {
	router chi.Router
	store  storage.RunStore
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store storage.RunStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.getRun)
				r.Get("/export.csv", s.exportRun)
			})
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
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runSummary is the list-view DTO: counts without per-keyword records.
type runSummary struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Domain    string    `json:"domain"`
	Total     int       `json:"total"`
	Found     int       `json:"found"`
}

// listRuns handles GET /api/runs?limit=. Most recent first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	limit := defaultRunLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxRunLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 1-%d", maxRunLimit))
			return
		}
		limit = parsed
	}

	runs, err := s.store.List(ctx, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	summaries := make([]runSummary, len(runs))
	for i, run := range runs {
		summaries[i] = runSummary{
			ID:        run.ID,
			Timestamp: run.Timestamp,
			Mode:      run.Mode,
			Domain:    run.Domain,
			Total:     run.Total,
			Found:     run.Found,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

// getRun handles GET /api/runs/{run_id} with full records.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// exportRun handles GET /api/runs/{run_id}/export.csv.
func (s *Server) exportRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "run_"+run.ID+".csv"))
	if err := storage.WriteCSV(w, run.Records); err != nil {
		s.logger.Error("csv export failed", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (storage.RunRecord, bool) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return storage.RunRecord{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	id := chi.URLParam(r, "run_id")
	run, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return storage.RunRecord{}, false
		}
		s.logger.Error("get run failed", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return storage.RunRecord{}, false
	}
	return run, true
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
