package driver

import (
	"context"
	"log/slog"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
)

func (d *Driver) emit(ctx context.Context, typ domain.EventType, taskID string, data any) {
	if d.sink == nil {
		return
	}
	ev := &domain.Event{
		Type:      typ,
		TaskID:    taskID,
		Timestamp: d.now(),
		Data:      data,
	}
	if err := d.sink.Emit(ctx, ev); err != nil {
		slog.Warn("Failed to emit event", "type", typ, "task", taskID, "error", err)
	}
}

// onBreakerChange mirrors breaker transitions into metrics and emits a
// circuit-break event whenever a scope opens.
func (d *Driver) onBreakerChange(ch breaker.Change) {
	metrics.CircuitBreakerState.WithLabelValues(ch.Scope).Set(stateValue(ch.To))
	if ch.To != breaker.StateOpen {
		slog.Info("Circuit breaker state changed", "scope", ch.Scope, "from", ch.From, "to", ch.To)
		return
	}

	metrics.CircuitBreakerTrips.WithLabelValues(ch.Scope).Inc()
	slog.Warn("Circuit breaker opened",
		"scope", ch.Scope,
		"failures", ch.Snapshot.FailureCount,
		"reason", ch.Reason,
	)
	d.emit(context.Background(), domain.EventCircuitBreak, "", domain.CircuitBreakData{
		ScopeKey:     ch.Scope,
		FailureCount: ch.Snapshot.FailureCount,
		OpenedAt:     ch.Snapshot.OpenedAt,
	})
}

func stateValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}
