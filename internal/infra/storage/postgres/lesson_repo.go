package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
)

// LessonRepo implements storage.LessonRepository using PostgreSQL.
type LessonRepo struct {
	db *DB
}

func NewLessonRepo(db *DB) *LessonRepo {
	return &LessonRepo{db: db}
}

type lessonRow struct {
	ID            string    `db:"id"`
	Type          string    `db:"lesson_type"`
	PatternHash   string    `db:"pattern_hash"`
	AgentType     string    `db:"agent_type"`
	TaskType      string    `db:"task_type"`
	Payload       []byte    `db:"payload"`
	Confidence    float64   `db:"confidence"`
	Effectiveness float64   `db:"effectiveness"`
	UsageCount    int       `db:"usage_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

const lessonColumns = `id, lesson_type, pattern_hash, agent_type, task_type, payload,
	confidence, effectiveness, usage_count, created_at, updated_at`

func (row lessonRow) toDomain() *domain.Lesson {
	return &domain.Lesson{
		ID:            row.ID,
		Type:          domain.LessonType(row.Type),
		PatternHash:   row.PatternHash,
		AgentType:     row.AgentType,
		TaskType:      row.TaskType,
		Payload:       row.Payload,
		Confidence:    row.Confidence,
		Effectiveness: row.Effectiveness,
		UsageCount:    row.UsageCount,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

// Upsert relies on the (lesson_type, pattern_hash) unique constraint, so
// concurrent passes cannot create duplicates.
func (r *LessonRepo) Upsert(ctx context.Context, l *domain.Lesson) (*domain.Lesson, bool, error) {
	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO lessons (id, lesson_type, pattern_hash, agent_type, task_type, payload,
		                     confidence, effectiveness, usage_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, NOW(), NOW())
		ON CONFLICT (lesson_type, pattern_hash) DO UPDATE SET
			payload = EXCLUDED.payload,
			confidence = EXCLUDED.confidence,
			agent_type = EXCLUDED.agent_type,
			task_type = EXCLUDED.task_type,
			updated_at = NOW()
		RETURNING ` + lessonColumns + `, (xmax = 0) AS inserted
	`

	var dest struct {
		lessonRow
		Inserted bool `db:"inserted"`
	}
	err := r.db.GetContext(ctx, &dest, query,
		id,
		string(l.Type),
		l.PatternHash,
		l.AgentType,
		l.TaskType,
		string(l.Payload),
		l.Confidence,
		l.Effectiveness,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert lesson: %w", err)
	}
	return dest.toDomain(), dest.Inserted, nil
}

func (r *LessonRepo) Get(ctx context.Context, id string) (*domain.Lesson, error) {
	var row lessonRow
	err := r.db.GetContext(ctx, &row, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return row.toDomain(), nil
}

func (r *LessonRepo) List(ctx context.Context, f storage.LessonFilter) ([]*domain.Lesson, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("lesson_type = $%d", string(f.Type))
	}
	if f.AgentType != "" {
		add("agent_type = $%d", f.AgentType)
	}
	if f.TaskType != "" {
		add("task_type = $%d", f.TaskType)
	}
	if f.MinConfidence > 0 {
		add("confidence >= $%d", f.MinConfidence)
	}

	query := `SELECT ` + lessonColumns + ` FROM lessons`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY confidence * effectiveness DESC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var rows []lessonRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	out := make([]*domain.Lesson, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// UpdateEffectiveness is a single statement so concurrent updates never
// lose writes.
func (r *LessonRepo) UpdateEffectiveness(ctx context.Context, id string, outcome, alpha float64) (*domain.Lesson, error) {
	query := `
		UPDATE lessons
		SET effectiveness = LEAST(1, GREATEST(0, effectiveness * (1 - $2) + $3 * $2)),
		    usage_count = usage_count + 1,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + lessonColumns

	var row lessonRow
	err := r.db.GetContext(ctx, &row, query, id, alpha, outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update lesson effectiveness: %w", err)
	}
	return row.toDomain(), nil
}
