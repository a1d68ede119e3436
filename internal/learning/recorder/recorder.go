package recorder

import (
	"context"
	"crypto/rand"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
)

// Outcome is the terminal result of one task's retry sequence.
type Outcome struct {
	Status         domain.TaskStatus
	Attempts       int
	Classification *domain.ErrorClassification
	Err            error
	StartedAt      time.Time
	CompletedAt    time.Time
}

// Recorder turns task outcomes into append-only execution records.
// IDs are ULIDs, so records sort by creation time.
type Recorder struct {
	repo storage.RecordRepository

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func New(repo storage.RecordRepository) *Recorder {
	return &Recorder{
		repo:    repo,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (r *Recorder) newID(t time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), r.entropy).String()
}

// Record builds and appends the record for task.
func (r *Recorder) Record(ctx context.Context, task *domain.Task, out Outcome) (*domain.ExecutionRecord, error) {
	rec := &domain.ExecutionRecord{
		ID:                r.newID(out.CompletedAt),
		TaskID:            task.ID,
		AgentType:         task.AgentType,
		TaskType:          task.TaskType,
		Phase:             task.Phase,
		GoalHash:          task.GoalHash(),
		RunID:             task.RunID,
		Dependencies:      slices.Clone(task.Dependencies),
		EstimatedDuration: task.EstimatedDuration,
		ActualDuration:    out.CompletedAt.Sub(out.StartedAt),
		Status:            out.Status,
		Attempts:          out.Attempts,
		Context:           maps.Clone(task.Context),
		StartedAt:         out.StartedAt,
		CompletedAt:       out.CompletedAt,
		CreatedAt:         out.CompletedAt,
	}
	if out.Classification != nil {
		rec.ErrorCategory = out.Classification.Category
		rec.ErrorMessage = out.Classification.Message
	}
	if rec.ErrorMessage == "" && out.Err != nil {
		rec.ErrorMessage = out.Err.Error()
	}

	metrics.TasksTotal.WithLabelValues(rec.AgentType, rec.TaskType, string(rec.Status)).Inc()
	metrics.TaskDuration.WithLabelValues(rec.AgentType, rec.TaskType).Observe(rec.ActualDuration.Seconds())

	if err := r.repo.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to record execution of %s: %w", task.ID, err)
	}
	return rec, nil
}
