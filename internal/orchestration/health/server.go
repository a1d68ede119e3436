package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
)

// TaskController is the operator's handle on the driver.
type TaskController interface {
	Tasks() []driver.TaskInfo
	ResumeTask(id string) error
	CancelTask(id string) error
}

// BreakerController lists and resets circuit breakers.
type BreakerController interface {
	Snapshots() []breaker.Snapshot
	Reset(scope string) error
}

// LessonSource serves learned lessons.
type LessonSource interface {
	ListLessons(ctx context.Context, f storage.LessonFilter) ([]*domain.Lesson, error)
	GetRecommendations(ctx context.Context, task *domain.Task) ([]*domain.Lesson, error)
}

// API groups the collaborators behind the operator endpoints. Nil members
// make their routes answer 503.
type API struct {
	Tasks    TaskController
	Breakers BreakerController
	Lessons  LessonSource
}

// Server provides HTTP endpoints for health monitoring and operator control.
type Server struct {
	monitor *Monitor
	api     API
	server  *http.Server
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, api API, port int) *Server {
	s := &Server{
		monitor: monitor,
		api:     api,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/breakers", s.handleBreakers)
	r.Post("/breakers/{scope}/reset", s.handleBreakerReset)

	r.Get("/tasks", s.handleTasks)
	r.Post("/tasks/{id}/resume", s.handleTaskResume)
	r.Post("/tasks/{id}/cancel", s.handleTaskCancel)

	r.Get("/lessons", s.handleLessons)
	r.Get("/recommendations", s.handleRecommendations)
	return r
}

// Start starts the HTTP server. It returns nil after Stop.
func (s *Server) Start() error {
	slog.Info("Health server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	if s.api.Breakers == nil {
		writeError(w, http.StatusServiceUnavailable, "breakers unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.api.Breakers.Snapshots())
}

func (s *Server) handleBreakerReset(w http.ResponseWriter, r *http.Request) {
	if s.api.Breakers == nil {
		writeError(w, http.StatusServiceUnavailable, "breakers unavailable")
		return
	}
	scope := chi.URLParam(r, "scope")
	if err := s.api.Breakers.Reset(scope); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	slog.Info("Circuit breaker reset by operator", "scope", scope)
	writeJSON(w, http.StatusOK, map[string]string{"scope": scope, "state": string(breaker.StateClosed)})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.api.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "driver unavailable")
		return
	}
	tasks := s.api.Tasks.Tasks()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if string(t.Status) == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskResume(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, "resumed", func(id string) error { return s.api.Tasks.ResumeTask(id) })
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	s.taskAction(w, r, "cancelled", func(id string) error { return s.api.Tasks.CancelTask(id) })
}

func (s *Server) taskAction(w http.ResponseWriter, r *http.Request, verb string, fn func(string) error) {
	if s.api.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "driver unavailable")
		return
	}
	id := chi.URLParam(r, "id")
	if err := fn(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	slog.Info("Task "+verb+" by operator", "task", id)
	writeJSON(w, http.StatusOK, map[string]string{"task": id, "result": verb})
}

func (s *Server) handleLessons(w http.ResponseWriter, r *http.Request) {
	if s.api.Lessons == nil {
		writeError(w, http.StatusServiceUnavailable, "learning unavailable")
		return
	}
	q := r.URL.Query()
	f := storage.LessonFilter{
		Type:      domain.LessonType(q.Get("type")),
		AgentType: q.Get("agentType"),
		TaskType:  q.Get("taskType"),
	}
	if v := q.Get("minConfidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid minConfidence")
			return
		}
		f.MinConfidence = c
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	lessons, err := s.api.Lessons.ListLessons(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lessons == nil {
		lessons = []*domain.Lesson{}
	}
	writeJSON(w, http.StatusOK, lessons)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if s.api.Lessons == nil {
		writeError(w, http.StatusServiceUnavailable, "learning unavailable")
		return
	}
	q := r.URL.Query()
	task := &domain.Task{
		AgentType: q.Get("agentType"),
		TaskType:  q.Get("taskType"),
	}
	if task.TaskType == "" {
		writeError(w, http.StatusBadRequest, "taskType is required")
		return
	}

	lessons, err := s.api.Lessons.GetRecommendations(r.Context(), task)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if lessons == nil {
		lessons = []*domain.Lesson{}
	}
	writeJSON(w, http.StatusOK, lessons)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, driver.ErrTaskNotFound), errors.Is(err, breaker.ErrUnknownScope):
		return http.StatusNotFound
	case errors.Is(err, driver.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// metricsMiddleware records request counts and latency keyed by the chi
// route pattern rather than the raw path.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
