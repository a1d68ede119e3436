package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage"
)

// Pruner deletes execution records older than the retention period.
type Pruner struct {
	records   storage.RecordRepository
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewPruner creates a new Pruner worker. A zero interval derives one from
// the retention period.
func NewPruner(records storage.RecordRepository, retention, interval time.Duration) *Pruner {
	if interval <= 0 {
		// 10% of retention, clamped to [1m, 1h]
		interval = min(retention/10, time.Hour)
		interval = max(interval, time.Minute)
	}
	return &Pruner{
		records:   records,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // retention disabled
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune runs one pass and returns the number of deleted records.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	n, err := p.records.DeleteBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to prune execution records", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("Pruned execution records", "deleted", n, "cutoff", cutoff)
	}
	return n
}
