package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
)

// ProfileRepo implements storage.ProfileRepository using PostgreSQL.
type ProfileRepo struct {
	db *DB
}

func NewProfileRepo(db *DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

type profileRow struct {
	AgentType         string    `db:"agent_type"`
	TaskType          string    `db:"task_type"`
	Samples           int       `db:"samples"`
	SuccessRate       float64   `db:"success_rate"`
	P50Ms             int64     `db:"p50_ms"`
	P95Ms             int64     `db:"p95_ms"`
	P99Ms             int64     `db:"p99_ms"`
	FailureSignatures []byte    `db:"failure_signatures"`
	ComputedAt        time.Time `db:"computed_at"`
}

func (row profileRow) toDomain() (*domain.AgentPerformanceProfile, error) {
	p := &domain.AgentPerformanceProfile{
		AgentType:   row.AgentType,
		TaskType:    row.TaskType,
		Samples:     row.Samples,
		SuccessRate: row.SuccessRate,
		P50:         time.Duration(row.P50Ms) * time.Millisecond,
		P95:         time.Duration(row.P95Ms) * time.Millisecond,
		P99:         time.Duration(row.P99Ms) * time.Millisecond,
		ComputedAt:  row.ComputedAt,
	}
	if len(row.FailureSignatures) > 0 {
		if err := json.Unmarshal(row.FailureSignatures, &p.FailureSignatures); err != nil {
			return nil, fmt.Errorf("failed to decode failure signatures: %w", err)
		}
	}
	return p, nil
}

// ReplaceAll rebuilds the profile table in one transaction.
func (r *ProfileRepo) ReplaceAll(ctx context.Context, profiles []*domain.AgentPerformanceProfile) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_performance_profiles`); err != nil {
		return fmt.Errorf("failed to clear profiles: %w", err)
	}

	query := `
		INSERT INTO agent_performance_profiles (
			agent_type, task_type, samples, success_rate, p50_ms, p95_ms, p99_ms,
			failure_signatures, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, p := range profiles {
		sigs := p.FailureSignatures
		if sigs == nil {
			sigs = []domain.FailureSignature{}
		}
		data, err := json.Marshal(sigs)
		if err != nil {
			return fmt.Errorf("failed to encode failure signatures: %w", err)
		}
		_, err = tx.ExecContext(ctx, query,
			p.AgentType,
			p.TaskType,
			p.Samples,
			p.SuccessRate,
			p.P50.Milliseconds(),
			p.P95.Milliseconds(),
			p.P99.Milliseconds(),
			string(data),
			p.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert profile %s/%s: %w", p.AgentType, p.TaskType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit profiles: %w", err)
	}
	return nil
}

func (r *ProfileRepo) Get(ctx context.Context, agentType, taskType string) (*domain.AgentPerformanceProfile, error) {
	var row profileRow
	err := r.db.GetContext(ctx, &row, `
		SELECT agent_type, task_type, samples, success_rate, p50_ms, p95_ms, p99_ms,
		       failure_signatures, computed_at
		FROM agent_performance_profiles
		WHERE agent_type = $1 AND task_type = $2
	`, agentType, taskType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return row.toDomain()
}

func (r *ProfileRepo) List(ctx context.Context) ([]*domain.AgentPerformanceProfile, error) {
	var rows []profileRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT agent_type, task_type, samples, success_rate, p50_ms, p95_ms, p99_ms,
		       failure_signatures, computed_at
		FROM agent_performance_profiles
		ORDER BY agent_type, task_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	out := make([]*domain.AgentPerformanceProfile, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
