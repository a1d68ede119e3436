package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// ErrNotFound is returned by Rollback when the buffer is empty or the id
// is unknown.
var ErrNotFound = errors.New("checkpoint not found")

type Config struct {
	Capacity int `yaml:"capacity"`
}

func DefaultConfig() Config {
	return Config{Capacity: 10}
}

// Mirror receives a copy of every stored checkpoint and every eviction.
// Mirror failures are logged and never fail the in-memory operation.
type Mirror interface {
	Save(ctx context.Context, cp *domain.Checkpoint) error
	Delete(ctx context.Context, id string) error
}

// Store is a fixed-capacity FIFO of checkpoints. Insertion and eviction
// happen under a single writer lock so readers never observe a partially
// evicted buffer.
type Store struct {
	mu       sync.RWMutex
	buf      []*domain.Checkpoint // oldest first
	capacity int

	mirror Mirror
	now    func() time.Time
}

// NewStore creates a store. mirror may be nil.
func NewStore(cfg Config, mirror Mirror) *Store {
	if cfg.Capacity < 1 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	return &Store{
		buf:      make([]*domain.Checkpoint, 0, cfg.Capacity),
		capacity: cfg.Capacity,
		mirror:   mirror,
		now:      time.Now,
	}
}

// Create serializes state into a new checkpoint. The stored snapshot is a
// deep copy; later changes to state do not affect it.
func (s *Store) Create(ctx context.Context, state any, agentStates map[string]string, meta domain.CheckpointMetadata) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize checkpoint state: %w", err)
	}

	cp := &domain.Checkpoint{
		ID:              uuid.NewString(),
		Timestamp:       s.now(),
		SerializedState: data,
		AgentStates:     maps.Clone(agentStates),
		Metadata:        meta,
	}

	evicted := s.insert(cp)

	if s.mirror != nil {
		if err := s.mirror.Save(ctx, cp.Clone()); err != nil {
			slog.Warn("Failed to mirror checkpoint", "id", cp.ID, "error", err)
		}
		if evicted != nil {
			if err := s.mirror.Delete(ctx, evicted.ID); err != nil {
				slog.Warn("Failed to delete evicted checkpoint", "id", evicted.ID, "error", err)
			}
		}
	}

	slog.Debug("Checkpoint created",
		"id", cp.ID,
		"description", meta.Description,
		"triggered_by", meta.TriggeredBy,
		"bytes", len(data),
	)
	return cp.Clone(), nil
}

// insert appends cp and returns the evicted checkpoint, if any.
func (s *Store) insert(cp *domain.Checkpoint) *domain.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) < s.capacity {
		s.buf = append(s.buf, cp)
		return nil
	}

	evicted := s.buf[0]
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = cp
	return evicted
}

// Rollback returns the checkpoint with the given id, or the most recent one
// when id is empty.
func (s *Store) Rollback(ctx context.Context, id string) (*domain.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.buf) == 0 {
		return nil, ErrNotFound
	}
	if id == "" {
		return s.buf[len(s.buf)-1].Clone(), nil
	}
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].ID == id {
			return s.buf[i].Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Restore rolls back to id and decodes the snapshot into dst.
func (s *Store) Restore(ctx context.Context, id string, dst any) (*domain.Checkpoint, error) {
	cp, err := s.Rollback(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := cp.Decode(dst); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", cp.ID, err)
	}
	return cp, nil
}

// Preload seeds the buffer with previously persisted checkpoints, oldest
// first. Only the newest Capacity entries are kept. Mirror is not called.
func (s *Store) Preload(cps []*domain.Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(cps) > s.capacity {
		cps = cps[len(cps)-s.capacity:]
	}
	s.buf = s.buf[:0]
	for _, cp := range cps {
		s.buf = append(s.buf, cp.Clone())
	}
}

// List returns copies of all checkpoints, oldest first.
func (s *Store) List() []*domain.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Checkpoint, len(s.buf))
	for i, cp := range s.buf {
		out[i] = cp.Clone()
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

func (s *Store) Capacity() int {
	return s.capacity
}
