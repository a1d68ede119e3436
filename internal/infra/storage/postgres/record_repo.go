package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// RecordRepo implements storage.RecordRepository using PostgreSQL.
type RecordRepo struct {
	db *DB
}

func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

type recordRow struct {
	ID            string    `db:"id"`
	TaskID        string    `db:"task_id"`
	AgentType     string    `db:"agent_type"`
	TaskType      string    `db:"task_type"`
	Phase         string    `db:"phase"`
	GoalHash      string    `db:"goal_hash"`
	RunID         string    `db:"run_id"`
	Dependencies  []byte    `db:"dependencies"`
	EstimatedMs   int64     `db:"estimated_ms"`
	ActualMs      int64     `db:"actual_ms"`
	Status        string    `db:"status"`
	ErrorCategory string    `db:"error_category"`
	ErrorMessage  string    `db:"error_message"`
	Attempts      int       `db:"attempts"`
	Context       []byte    `db:"context"`
	StartedAt     time.Time `db:"started_at"`
	CompletedAt   time.Time `db:"completed_at"`
	CreatedAt     time.Time `db:"created_at"`
}

// Append inserts a record. Records are immutable once written.
func (r *RecordRepo) Append(ctx context.Context, rec *domain.ExecutionRecord) error {
	deps, err := json.Marshal(nonNilStrings(rec.Dependencies))
	if err != nil {
		return fmt.Errorf("failed to encode dependencies: %w", err)
	}
	execCtx, err := json.Marshal(nonNilMap(rec.Context))
	if err != nil {
		return fmt.Errorf("failed to encode context: %w", err)
	}

	query := `
		INSERT INTO execution_records (
			id, task_id, agent_type, task_type, phase, goal_hash, dependencies,
			estimated_ms, actual_ms, status, error_category, error_message, attempts,
			context, started_at, completed_at, run_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID,
		rec.TaskID,
		rec.AgentType,
		rec.TaskType,
		rec.Phase,
		rec.GoalHash,
		string(deps),
		rec.EstimatedDuration.Milliseconds(),
		rec.ActualDuration.Milliseconds(),
		string(rec.Status),
		string(rec.ErrorCategory),
		rec.ErrorMessage,
		rec.Attempts,
		string(execCtx),
		rec.StartedAt,
		rec.CompletedAt,
		rec.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution record: %w", err)
	}
	return nil
}

func (r *RecordRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.ExecutionRecord, error) {
	query := `
		SELECT id, task_id, agent_type, task_type, phase, goal_hash, dependencies,
		       estimated_ms, actual_ms, status, error_category, error_message, attempts,
		       context, started_at, completed_at, run_id, created_at
		FROM execution_records
		WHERE started_at >= $1
		ORDER BY started_at ASC, id ASC
	`

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}

	out := make([]*domain.ExecutionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RecordRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM execution_records WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune execution records: %w", err)
	}
	return res.RowsAffected()
}

func (r *RecordRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM execution_records`); err != nil {
		return 0, fmt.Errorf("failed to count execution records: %w", err)
	}
	return n, nil
}

func (row recordRow) toDomain() (*domain.ExecutionRecord, error) {
	rec := &domain.ExecutionRecord{
		ID:                row.ID,
		TaskID:            row.TaskID,
		AgentType:         row.AgentType,
		TaskType:          row.TaskType,
		Phase:             row.Phase,
		GoalHash:          row.GoalHash,
		RunID:             row.RunID,
		EstimatedDuration: time.Duration(row.EstimatedMs) * time.Millisecond,
		ActualDuration:    time.Duration(row.ActualMs) * time.Millisecond,
		Status:            domain.TaskStatus(row.Status),
		ErrorCategory:     domain.ErrorCategory(row.ErrorCategory),
		ErrorMessage:      row.ErrorMessage,
		Attempts:          row.Attempts,
		StartedAt:         row.StartedAt,
		CompletedAt:       row.CompletedAt,
		CreatedAt:         row.CreatedAt,
	}
	if len(row.Dependencies) > 0 {
		if err := json.Unmarshal(row.Dependencies, &rec.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to decode dependencies of %s: %w", row.ID, err)
		}
	}
	if len(row.Context) > 0 {
		if err := json.Unmarshal(row.Context, &rec.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context of %s: %w", row.ID, err)
		}
	}
	return rec, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
