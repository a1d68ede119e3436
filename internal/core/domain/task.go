package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusBlocked   TaskStatus = "blocked"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are expected without
// operator action.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// Task is one schedulable unit of work owned by a goal.
type Task struct {
	ID                string
	AgentType         string
	TaskType          string
	Phase             string
	Goal              string
	Dependencies      []string
	EstimatedDuration time.Duration
	// Risky tasks are checkpointed before execution.
	Risky    bool
	Priority int
	Context  map[string]any
	// RunID separates repeated runs of the same goal. The driver fills it
	// when empty.
	RunID string
}

// GoalHash groups tasks that serve the same goal. Tasks without a goal
// have no hash.
func (t Task) GoalHash() string {
	if t.Goal == "" {
		return ""
	}
	return HashGoal(t.Goal)
}

func HashGoal(goal string) string {
	sum := sha256.Sum256([]byte(goal))
	return hex.EncodeToString(sum[:8])
}
