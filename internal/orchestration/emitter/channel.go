package emitter

import (
	"context"
	"errors"
	"sync"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// ErrSinkFull is returned when a ChannelSink buffer has no room.
var ErrSinkFull = errors.New("event sink buffer full")

// ErrSinkClosed is returned by Emit after Close.
var ErrSinkClosed = errors.New("event sink closed")

// ChannelSink delivers events to an in-process consumer. Emit never blocks:
// when the buffer is full the event is dropped and ErrSinkFull returned.
type ChannelSink struct {
	mu     sync.RWMutex
	ch     chan *domain.Event
	closed bool
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan *domain.Event, buffer)}
}

// Events returns the receive side. It is closed by Close.
func (c *ChannelSink) Events() <-chan *domain.Event {
	return c.ch
}

func (c *ChannelSink) Emit(ctx context.Context, event *domain.Event) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrSinkClosed
	}
	select {
	case c.ch <- event:
		return nil
	default:
		return ErrSinkFull
	}
}

func (c *ChannelSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

// Recorder keeps every event in memory. Useful for audit views and tests.
type Recorder struct {
	mu     sync.Mutex
	events []*domain.Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events in emission order.
func (r *Recorder) Events() []*domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Event(nil), r.events...)
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(t domain.EventType) []*domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
