package lifecycle

import (
	"errors"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// State is an alias for domain.TaskStatus for internal use.
type State = domain.TaskStatus

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid task state transition")

// ValidTransitions defines allowed task state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	domain.TaskStatusPending: {
		domain.TaskStatusRunning,
		domain.TaskStatusBlocked,
		domain.TaskStatusCancelled,
	},
	domain.TaskStatusRunning: {
		domain.TaskStatusCompleted,
		domain.TaskStatusFailed,
		domain.TaskStatusPaused,
		domain.TaskStatusCancelled,
		domain.TaskStatusPending, // re-queued after rollback
	},
	domain.TaskStatusPaused:  {domain.TaskStatusPending, domain.TaskStatusCancelled},
	domain.TaskStatusBlocked: {domain.TaskStatusPending, domain.TaskStatusCancelled},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	TaskID    string
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

func NewTransition(taskID string, from, to State, reason string) Transition {
	return Transition{
		TaskID:    taskID,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.TaskStatusPending:
		return "Pending - waiting for dependencies or a free slot"
	case domain.TaskStatusRunning:
		return "Running - operation in progress"
	case domain.TaskStatusCompleted:
		return "Completed - operation succeeded"
	case domain.TaskStatusFailed:
		return "Failed - terminal failure recorded"
	case domain.TaskStatusPaused:
		return "Paused - waiting for external resolution"
	case domain.TaskStatusBlocked:
		return "Blocked - a prerequisite is paused, failed or cancelled"
	case domain.TaskStatusCancelled:
		return "Cancelled - stopped before completion"
	default:
		return "Unknown state"
	}
}
