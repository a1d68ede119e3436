// Package breaker implements per-scope circuit breakers.
//
// A breaker starts Closed. It opens when failures inside the rolling window
// reach the threshold for the failing error type, moves to HalfOpen once
// ResetAfter has elapsed, and admits exactly one trial while HalfOpen.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is matched by errors returned when a breaker rejects an attempt.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds breaker policy.
type Config struct {
	TransientThreshold int           `yaml:"transient_threshold"`
	RetriableThreshold int           `yaml:"retriable_threshold"`
	Window             time.Duration `yaml:"window"`
	ResetAfter         time.Duration `yaml:"reset_after"`
	// ResetOnSuccess clears the failure count on success in Closed state
	// instead of decrementing it.
	ResetOnSuccess bool `yaml:"reset_on_success"`
}

func DefaultConfig() Config {
	return Config{
		TransientThreshold: 10,
		RetriableThreshold: 5,
		Window:             5 * time.Minute,
		ResetAfter:         60 * time.Second,
	}
}

// ThresholdFor returns the failure threshold applied to failures of type t.
func (c Config) ThresholdFor(t domain.ErrorType) int {
	if t == domain.ErrorTypeTransient {
		return c.TransientThreshold
	}
	return c.RetriableThreshold
}

// Snapshot is a point-in-time view of one breaker.
type Snapshot struct {
	Scope        string        `json:"scope"`
	State        State         `json:"state"`
	IsOpen       bool          `json:"isOpen"`
	FailureCount int           `json:"failureCount"`
	WindowStart  time.Time     `json:"windowStart"`
	OpenedAt     time.Time     `json:"openedAt"`
	Threshold    int           `json:"threshold"`
	ResetAfter   time.Duration `json:"resetAfter"`
}

// Change describes a state transition of one breaker.
type Change struct {
	Scope    string
	From     State
	To       State
	Reason   string
	Snapshot Snapshot
}

// Breaker guards a single scope. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	scope string
	cfg   Config
	now   func() time.Time

	state          State
	failures       []time.Time
	threshold      int
	openedAt       time.Time
	trialInFlight  bool
	trialStartedAt time.Time

	onChange func(Change)
}

func newBreaker(scope string, cfg Config, now func() time.Time, onChange func(Change)) *Breaker {
	return &Breaker{
		scope:     scope,
		cfg:       cfg,
		now:       now,
		state:     StateClosed,
		threshold: cfg.RetriableThreshold,
		onChange:  onChange,
	}
}

// Allow reports whether an attempt may proceed. While HalfOpen only one
// caller is admitted until it reports an outcome; an unreported trial is
// abandoned after ResetAfter.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	var changes []Change
	b.advance(&changes)

	allowed := false
	switch b.state {
	case StateClosed:
		allowed = true
	case StateHalfOpen:
		now := b.now()
		if !b.trialInFlight || now.Sub(b.trialStartedAt) >= b.cfg.ResetAfter {
			b.trialInFlight = true
			b.trialStartedAt = now
			allowed = true
		}
	}
	b.mu.Unlock()

	b.notify(changes)
	return allowed
}

// RecordSuccess reports a successful attempt.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var changes []Change
	b.advance(&changes)

	switch b.state {
	case StateHalfOpen:
		b.failures = b.failures[:0]
		b.trialInFlight = false
		b.setState(StateClosed, "trial succeeded", &changes)
	case StateClosed:
		if b.cfg.ResetOnSuccess {
			b.failures = b.failures[:0]
		} else if len(b.failures) > 0 {
			b.failures = b.failures[1:]
		}
	}
	b.mu.Unlock()

	b.notify(changes)
}

// RecordFailure reports a failed attempt classified as t.
func (b *Breaker) RecordFailure(t domain.ErrorType) {
	b.mu.Lock()
	var changes []Change
	b.advance(&changes)

	now := b.now()
	b.prune(now)
	b.failures = append(b.failures, now)
	b.threshold = b.cfg.ThresholdFor(t)

	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.openedAt = now
		b.setState(StateOpen, "trial failed", &changes)
	case StateClosed:
		if len(b.failures) >= b.threshold {
			b.openedAt = now
			b.setState(StateOpen, "failure threshold reached", &changes)
		}
	}
	b.mu.Unlock()

	b.notify(changes)
}

// Trip forces the breaker open regardless of counts.
func (b *Breaker) Trip(reason string) {
	b.mu.Lock()
	var changes []Change
	b.advance(&changes)
	b.openedAt = b.now()
	b.trialInFlight = false
	if b.state != StateOpen {
		b.setState(StateOpen, reason, &changes)
	}
	b.mu.Unlock()

	b.notify(changes)
}

// Reset closes the breaker and clears counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	var changes []Change
	b.failures = b.failures[:0]
	b.trialInFlight = false
	b.openedAt = time.Time{}
	if b.state != StateClosed {
		b.setState(StateClosed, "operator reset", &changes)
	}
	b.mu.Unlock()

	b.notify(changes)
}

func (b *Breaker) State() State {
	return b.Snapshot().State
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	var changes []Change
	b.advance(&changes)
	b.prune(b.now())
	s := b.snapshot()
	b.mu.Unlock()

	b.notify(changes)
	return s
}

// advance moves Open to HalfOpen once ResetAfter has elapsed. Caller holds mu.
func (b *Breaker) advance(changes *[]Change) {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetAfter {
		b.trialInFlight = false
		b.setState(StateHalfOpen, "reset timeout elapsed", changes)
	}
}

// prune drops failures outside the rolling window. Caller holds mu.
func (b *Breaker) prune(now time.Time) {
	if b.cfg.Window <= 0 {
		return
	}
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.failures) && !b.failures[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.failures = append(b.failures[:0], b.failures[i:]...)
	}
}

func (b *Breaker) setState(to State, reason string, changes *[]Change) {
	from := b.state
	b.state = to
	*changes = append(*changes, Change{
		Scope:    b.scope,
		From:     from,
		To:       to,
		Reason:   reason,
		Snapshot: b.snapshot(),
	})
}

func (b *Breaker) snapshot() Snapshot {
	s := Snapshot{
		Scope:        b.scope,
		State:        b.state,
		IsOpen:       b.state == StateOpen,
		FailureCount: len(b.failures),
		OpenedAt:     b.openedAt,
		Threshold:    b.threshold,
		ResetAfter:   b.cfg.ResetAfter,
	}
	if len(b.failures) > 0 {
		s.WindowStart = b.failures[0]
	}
	return s
}

func (b *Breaker) notify(changes []Change) {
	if b.onChange == nil {
		return
	}
	for _, c := range changes {
		b.onChange(c)
	}
}
