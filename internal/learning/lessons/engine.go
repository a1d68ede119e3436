package lessons

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/analytics"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
)

// Report summarizes one analysis pass.
type Report struct {
	Records     int                               `json:"records"`
	Created     int                               `json:"created"`
	Updated     int                               `json:"updated"`
	Lessons     []*domain.Lesson                  `json:"lessons"`
	Profiles    []*domain.AgentPerformanceProfile `json:"profiles"`
	Duration    time.Duration                     `json:"duration"`
	CompletedAt time.Time                         `json:"completedAt"`
}

// AgentChoice is the best-performing agent for a task type.
type AgentChoice struct {
	AgentType  string  `json:"agentType"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithMinConfidence sets the floor for served recommendations.
func WithMinConfidence(v float64) Option {
	return func(e *Engine) { e.minConfidence = v }
}

// WithProfiles lets GetTimeEstimate fall back to persisted profiles.
func WithProfiles(repo storage.ProfileRepository) Option {
	return func(e *Engine) { e.profiles = repo }
}

// Engine mines execution history for lessons and serves them as
// recommendations. Only one analysis pass runs at a time; concurrent
// callers share its result.
type Engine struct {
	analytics     *analytics.Engine
	lessons       storage.LessonRepository
	profiles      storage.ProfileRepository
	cfg           Config
	minConfidence float64

	group singleflight.Group
	now   func() time.Time
}

func NewEngine(a *analytics.Engine, repo storage.LessonRepository, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		analytics:     a,
		lessons:       repo,
		cfg:           cfg,
		minConfidence: 0.6,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.EffectivenessAlpha <= 0 || e.cfg.EffectivenessAlpha > 1 {
		e.cfg.EffectivenessAlpha = DefaultConfig().EffectivenessAlpha
	}
	return e
}

func (e *Engine) Config() Config {
	return e.cfg
}

// AnalyzePatterns runs every detector over the current snapshot and
// upserts the resulting lessons.
func (e *Engine) AnalyzePatterns(ctx context.Context) (*Report, error) {
	v, err, shared := e.group.Do("analyze", func() (any, error) {
		return e.analyze(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Joined in-flight analysis pass")
	}
	return v.(*Report), nil
}

func (e *Engine) analyze(ctx context.Context) (*Report, error) {
	start := e.now()
	defer func() {
		metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	}()

	snap, err := e.analytics.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{Records: len(snap.Records), Profiles: snap.Profiles()}
	for _, d := range detectors {
		candidates := d.fn(snap, e.cfg)
		for _, cand := range candidates {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			stored, created, err := e.lessons.Upsert(ctx, cand)
			if err != nil {
				return nil, fmt.Errorf("failed to upsert %s lesson: %w", cand.Type, err)
			}
			if created {
				report.Created++
			} else {
				report.Updated++
			}
			metrics.LessonsUpserted.WithLabelValues(string(stored.Type), fmt.Sprint(created)).Inc()
			report.Lessons = append(report.Lessons, stored)
		}
		if len(candidates) > 0 {
			slog.Debug("Detector finished", "detector", d.name, "lessons", len(candidates))
		}
	}

	report.CompletedAt = e.now()
	report.Duration = report.CompletedAt.Sub(start)
	slog.Info("Pattern analysis complete",
		"records", report.Records,
		"created", report.Created,
		"updated", report.Updated,
		"profiles", len(report.Profiles),
		"duration", report.Duration,
	)
	return report, nil
}

// GetRecommendations returns lessons applicable to task with confidence at
// or above the configured floor, best score first. No history means no
// recommendations, never an error.
func (e *Engine) GetRecommendations(ctx context.Context, task *domain.Task) ([]*domain.Lesson, error) {
	all, err := e.lessons.List(ctx, storage.LessonFilter{MinConfidence: e.minConfidence})
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}

	var out []*domain.Lesson
	for _, l := range all {
		if applies(l, task) {
			out = append(out, l)
			metrics.Recommendations.WithLabelValues(string(l.Type)).Inc()
		}
	}
	return out, nil
}

func applies(l *domain.Lesson, task *domain.Task) bool {
	switch l.Type {
	case domain.LessonAgentSelection, domain.LessonErrorPrevention:
		return l.TaskType == task.TaskType
	case domain.LessonTimeEstimation:
		return l.TaskType == task.TaskType && l.AgentType == task.AgentType
	case domain.LessonTaskOrdering:
		var p domain.TaskOrderingPayload
		return l.DecodePayload(&p) == nil && slices.Contains(p.Sequence, task.TaskType)
	case domain.LessonParallelization:
		var p domain.ParallelizationPayload
		return l.DecodePayload(&p) == nil && slices.Contains(p.TaskTypes[:], task.TaskType)
	default:
		return false
	}
}

// GetBestAgentForTask ranks agents with enough samples by success rate.
// ok is false when no agent has enough history.
func (e *Engine) GetBestAgentForTask(ctx context.Context, taskType string) (AgentChoice, bool, error) {
	snap, err := e.analytics.Snapshot(ctx)
	if err != nil {
		return AgentChoice{}, false, err
	}
	for _, ar := range snap.AgentRates(taskType) {
		if ar.Sufficient {
			return AgentChoice{AgentType: ar.AgentType, Confidence: ar.Rate.Rate, Samples: ar.Samples}, true, nil
		}
	}
	return AgentChoice{}, false, nil
}

// GetTimeEstimate returns the best duration estimate for task: a confident
// TimeEstimation lesson, then the persisted profile median, then the
// task's own estimate.
func (e *Engine) GetTimeEstimate(ctx context.Context, task *domain.Task) (time.Duration, error) {
	found, err := e.lessons.List(ctx, storage.LessonFilter{
		Type:          domain.LessonTimeEstimation,
		AgentType:     task.AgentType,
		TaskType:      task.TaskType,
		MinConfidence: e.minConfidence,
		Limit:         1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list lessons: %w", err)
	}
	if len(found) > 0 {
		var p domain.TimeEstimationPayload
		if err := found[0].DecodePayload(&p); err == nil && p.CorrectedEstimate > 0 {
			return p.CorrectedEstimate, nil
		}
	}

	if e.profiles != nil {
		prof, err := e.profiles.Get(ctx, task.AgentType, task.TaskType)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return 0, fmt.Errorf("failed to get profile: %w", err)
		case prof.Samples >= e.analytics.Config().MinSamples && prof.P50 > 0:
			return prof.P50, nil
		}
	}
	return task.EstimatedDuration, nil
}

// UpdateEffectiveness folds one post-application outcome into the lesson's
// moving average.
func (e *Engine) UpdateEffectiveness(ctx context.Context, lessonID string, success bool) (*domain.Lesson, error) {
	outcome := 0.0
	if success {
		outcome = 1
	}
	l, err := e.lessons.UpdateEffectiveness(ctx, lessonID, outcome, e.cfg.EffectivenessAlpha)
	if err != nil {
		return nil, fmt.Errorf("failed to update effectiveness of %s: %w", lessonID, err)
	}
	return l, nil
}

// ListLessons returns stored lessons, best score first.
func (e *Engine) ListLessons(ctx context.Context, f storage.LessonFilter) ([]*domain.Lesson, error) {
	return e.lessons.List(ctx, f)
}
