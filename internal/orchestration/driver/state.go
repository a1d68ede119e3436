package driver

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// StateHolder is the workflow state the driver checkpoints before risky
// tasks and restores on rollback.
type StateHolder interface {
	// CheckpointState returns a value to serialize into a checkpoint.
	CheckpointState() any
	// RestoreCheckpoint replaces the current state with the snapshot.
	RestoreCheckpoint(cp *domain.Checkpoint) error
}

// SharedState is a concurrency-safe key/value store shared by the
// operations of one driver. Values must be JSON-serializable; after a
// restore they come back in their JSON-decoded form.
type SharedState struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewSharedState() *SharedState {
	return &SharedState{data: make(map[string]any)}
}

func (s *SharedState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *SharedState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *SharedState) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Snapshot returns a shallow copy of the current contents.
func (s *SharedState) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

func (s *SharedState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// CheckpointState serializes under the read lock so nested values cannot
// change between the snapshot and the checkpoint write. A value that does
// not serialize is returned as is for the checkpoint store to reject.
func (s *SharedState) CheckpointState() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, err := json.Marshal(s.data)
	if err != nil {
		return maps.Clone(s.data)
	}
	return json.RawMessage(data)
}

func (s *SharedState) RestoreCheckpoint(cp *domain.Checkpoint) error {
	restored := make(map[string]any)
	if err := cp.Decode(&restored); err != nil {
		return fmt.Errorf("failed to decode shared state: %w", err)
	}
	if restored == nil {
		restored = make(map[string]any)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = restored
	return nil
}
