package emitter

import (
	"context"
	"errors"
	"log/slog"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
)

// Sink receives orchestration events. The delivery transport (websocket,
// pub/sub, audit log) lives behind this interface.
type Sink interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.Event) error

	// Close releases the sink
	Close() error
}

// Multi fans an event out to every sink. A failing sink does not stop
// delivery to the others.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out}
}

func (m *Multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	result := "ok"
	if len(errs) > 0 {
		result = "error"
	}
	metrics.EventsEmitted.WithLabelValues(string(event.Type), result).Inc()
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured logger.
type LogSink struct {
	level slog.Level
}

func NewLogSink(level slog.Level) *LogSink {
	return &LogSink{level: level}
}

func (l *LogSink) Emit(ctx context.Context, event *domain.Event) error {
	slog.Log(ctx, l.level, "Event",
		"type", event.Type,
		"task_id", event.TaskID,
		"data", event.Data,
	)
	return nil
}

func (l *LogSink) Close() error { return nil }
