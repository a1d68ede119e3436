package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
)

// Config bounds the history the read-model aggregates over.
type Config struct {
	Lookback   time.Duration `yaml:"lookback"`
	MinSamples int           `yaml:"min_samples"`
}

func DefaultConfig() Config {
	return Config{
		Lookback:   30 * 24 * time.Hour,
		MinSamples: 5,
	}
}

// Engine is a read-only view over execution records. It never writes and
// takes no locks of its own; each query reads a fresh snapshot.
type Engine struct {
	records storage.RecordRepository
	cfg     Config
	now     func() time.Time
}

func New(records storage.RecordRepository, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.MinSamples < 1 {
		cfg.MinSamples = def.MinSamples
	}
	return &Engine{records: records, cfg: cfg, now: time.Now}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Snapshot loads every record inside the lookback window.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := e.now()
	recs, err := e.records.ListSince(ctx, now.Add(-e.cfg.Lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load execution records: %w", err)
	}
	return NewSnapshot(recs, e.cfg.MinSamples, now), nil
}

func (e *Engine) SuccessRate(ctx context.Context, agentType, taskType string) (Rate, error) {
	s, err := e.Snapshot(ctx)
	if err != nil {
		return Rate{}, err
	}
	return s.SuccessRate(agentType, taskType), nil
}

func (e *Engine) DurationPercentiles(ctx context.Context, agentType, taskType string) (Percentiles, error) {
	s, err := e.Snapshot(ctx)
	if err != nil {
		return Percentiles{}, err
	}
	return s.DurationPercentiles(agentType, taskType), nil
}

func (e *Engine) CommonFailureSignatures(ctx context.Context, taskType string) ([]domain.FailureSignature, error) {
	s, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.CommonFailureSignatures(taskType), nil
}

func (e *Engine) TimeEstimationAccuracy(ctx context.Context) ([]EstimationAccuracy, error) {
	s, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.TimeEstimationAccuracy(), nil
}
