package retry

import (
	"sync"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// HistoryLog keeps the most recent sealed retry histories for diagnostics.
type HistoryLog struct {
	mu      sync.RWMutex
	size    int
	entries []*domain.RetryHistory // ring buffer, oldest first
}

func NewHistoryLog(size int) *HistoryLog {
	if size < 1 {
		size = 256
	}
	return &HistoryLog{size: size, entries: make([]*domain.RetryHistory, 0, size)}
}

// Add stores a copy of h, dropping the oldest entry when full.
func (l *HistoryLog) Add(h *domain.RetryHistory) {
	h = h.Clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) >= l.size {
		// Shift elements left, drop oldest
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = h
	} else {
		l.entries = append(l.entries, h)
	}
}

// Get returns the latest history recorded for operationID.
func (l *HistoryLog) Get(operationID string) (*domain.RetryHistory, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].OperationID == operationID {
			return l.entries[i].Clone(), true
		}
	}
	return nil, false
}

// Recent returns up to n histories, newest first.
func (l *HistoryLog) Recent(n int) []*domain.RetryHistory {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]*domain.RetryHistory, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i].Clone())
	}
	return out
}

func (l *HistoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
