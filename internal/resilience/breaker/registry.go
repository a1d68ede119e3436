package breaker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// ErrUnknownScope is returned when no breaker exists for a scope.
var ErrUnknownScope = errors.New("unknown circuit breaker scope")

// Registry owns one Breaker per scope key. Breakers are created lazily and
// live for the lifetime of the registry.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	cfg      Config
	now      func() time.Time
	onChange func(Change)
}

// NewRegistry creates a registry. A nil now uses time.Now.
func NewRegistry(cfg Config, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		now:      now,
	}
}

// SetStateChangeCallback registers fn to be called after every transition.
// It must be set before the first breaker is created.
func (r *Registry) SetStateChangeCallback(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Get returns the breaker for scope, creating it if needed.
func (r *Registry) Get(scope string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[scope]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[scope]; ok {
		return b
	}
	b = newBreaker(scope, r.cfg, r.now, r.onChange)
	r.breakers[scope] = b
	return b
}

func (r *Registry) Allow(scope string) bool {
	return r.Get(scope).Allow()
}

func (r *Registry) RecordSuccess(scope string) {
	r.Get(scope).RecordSuccess()
}

func (r *Registry) RecordFailure(scope string, t domain.ErrorType) {
	r.Get(scope).RecordFailure(t)
}

// Trip forces the scope's breaker open.
func (r *Registry) Trip(scope, reason string) {
	r.Get(scope).Trip(reason)
}

// Reset closes an existing breaker.
func (r *Registry) Reset(scope string) error {
	r.mu.RLock()
	b, ok := r.breakers[scope]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownScope
	}
	b.Reset()
	return nil
}

// Snapshots returns the state of every breaker ordered by scope.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out
}

// States maps each scope to its current state name.
func (r *Registry) States() map[string]string {
	snaps := r.Snapshots()
	out := make(map[string]string, len(snaps))
	for _, s := range snaps {
		out[s.Scope] = string(s.State)
	}
	return out
}
