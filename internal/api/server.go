// Package api serves the reconciled tables and run log over HTTP and lets
// operators trigger a reconciliation.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/store"
)

// Runner starts one reconciliation.
type Runner interface {
	Reconcile(ctx context.Context, dryRun bool) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dryRun bool) error

// Reconcile calls f.
func (f RunnerFunc) Reconcile(ctx context.Context, dryRun bool) error { return f(ctx, dryRun) }

// Config wires a Server.
type Config struct {
	Store  store.Store
	Runner Runner
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// Server handles the HTTP API.
type Server struct {
	store    store.Store
	runner   Runner
	gatherer prometheus.Gatherer
	origins  []string

	// base cancels triggered runs.
	base    context.Context
	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a Server. Triggered runs use base for cancellation.
func New(base context.Context, cfg Config) *Server {
	return &Server{
		store:    cfg.Store,
		runner:   cfg.Runner,
		gatherer: cfg.Gatherer,
		origins:  cfg.CORSOrigins,
		base:     base,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/mentors", s.handleMentors)
	r.Get("/conflicts", s.handleConflicts)
	r.Get("/staging", s.handleStaging)
	r.Get("/runs", s.handleRuns)
	r.Post("/reconcile", s.handleReconcile)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Wait blocks until every triggered run has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMentors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.MentorFilter{Status: model.Status(q.Get("status"))}
	if filter.Status != "" && !slices.Contains(model.AllStatuses, filter.Status) {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(q.Get("status")))
		return
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	mentors, err := s.store.ListMentors(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list mentors", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.Mentor]{Items: nonNil(mentors), Count: len(mentors)})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ConflictFilter{
		Severity: model.Severity(q.Get("severity")),
		Type:     model.ConflictType(q.Get("type")),
		MnID:     q.Get("mn_id"),
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		writeError(w, http.StatusBadRequest, "unknown severity "+strconv.Quote(q.Get("severity")))
		return
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}

	conflicts, err := s.store.ListConflicts(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.Conflict]{Items: nonNil(conflicts), Count: len(conflicts)})
}

func (s *Server) handleStaging(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListStaging(r.Context())
	if err != nil {
		s.internalError(w, "list staging", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.StagingRow]{Items: nonNil(rows), Count: len(rows)})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Kind:   q.Get("kind"),
	}
	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.StartedAfter = since
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.Run]{Items: nonNil(runs), Count: len(runs)})
}

// handleReconcile starts a run in the background and answers 202. Only one
// triggered run executes at a time; a second request gets 409.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "reconcile is not enabled")
		return
	}
	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "dry_run must be a boolean")
			return
		}
		dryRun = b
	}
	if !s.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "a reconciliation is already running")
		return
	}

	requestID := middleware.GetReqID(r.Context())
	s.wg.Go(func() {
		defer s.running.Store(false)
		log := zap.L().With(zap.String("component", "api"), zap.String("request_id", requestID))
		if err := s.runner.Reconcile(s.base, dryRun); err != nil {
			log.Error("api: triggered reconcile failed", zap.Error(err))
			return
		}
		log.Info("api: triggered reconcile complete", zap.Bool("dry_run", dryRun))
	})

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted", "dry_run": dryRun})
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("api: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
