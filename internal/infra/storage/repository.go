package storage

import (
	"context"
	"errors"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

var (
	// ErrNotFound is returned when a lesson or profile doesn't exist
	ErrNotFound = errors.New("not found")
)

// RecordRepository is the append-only execution history
type RecordRepository interface {
	// Append stores a new record; records are never updated
	Append(ctx context.Context, rec *domain.ExecutionRecord) error

	// ListSince returns records started at or after since, oldest first
	ListSince(ctx context.Context, since time.Time) ([]*domain.ExecutionRecord, error)

	// DeleteBefore prunes records started before the cutoff
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)

	// Count returns the total number of records
	Count(ctx context.Context) (int64, error)
}

// LessonFilter narrows List results. Zero fields match everything.
type LessonFilter struct {
	Type          domain.LessonType
	AgentType     string
	TaskType      string
	MinConfidence float64
	Limit         int
}

// LessonRepository stores lessons keyed by (type, pattern hash)
type LessonRepository interface {
	// Upsert inserts the lesson or, when (Type, PatternHash) exists, updates
	// its payload, scope and confidence. Returns the stored lesson and
	// whether it was created.
	Upsert(ctx context.Context, l *domain.Lesson) (*domain.Lesson, bool, error)

	// Get retrieves a lesson by id
	Get(ctx context.Context, id string) (*domain.Lesson, error)

	// List returns lessons ordered by confidence*effectiveness, highest first
	List(ctx context.Context, f LessonFilter) ([]*domain.Lesson, error)

	// UpdateEffectiveness applies e = e*(1-alpha) + outcome*alpha and
	// increments the usage count atomically
	UpdateEffectiveness(ctx context.Context, id string, outcome, alpha float64) (*domain.Lesson, error)
}

// ProfileRepository stores aggregates rebuilt from execution records
type ProfileRepository interface {
	// ReplaceAll swaps the full set of profiles
	ReplaceAll(ctx context.Context, profiles []*domain.AgentPerformanceProfile) error

	// Get retrieves the profile for an agent and task type
	Get(ctx context.Context, agentType, taskType string) (*domain.AgentPerformanceProfile, error)

	// List returns every profile ordered by agent and task type
	List(ctx context.Context) ([]*domain.AgentPerformanceProfile, error)
}
