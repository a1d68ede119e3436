package lifecycle

import (
	"testing"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{domain.TaskStatusPending, domain.TaskStatusRunning, true},
		{domain.TaskStatusRunning, domain.TaskStatusPaused, true},
		{domain.TaskStatusRunning, domain.TaskStatusPending, true},
		{domain.TaskStatusPaused, domain.TaskStatusPending, true},
		{domain.TaskStatusBlocked, domain.TaskStatusPending, true},
		{domain.TaskStatusCompleted, domain.TaskStatusRunning, false},
		{domain.TaskStatusFailed, domain.TaskStatusPending, false},
		{domain.TaskStatusPending, domain.TaskStatusCompleted, false},
		{domain.TaskStatusPaused, domain.TaskStatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []State{domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(ValidTransitions[s]) != 0 {
			t.Errorf("terminal state %s has outgoing transitions", s)
		}
	}
}

func TestTransitionIsValid(t *testing.T) {
	tr := NewTransition("t1", domain.TaskStatusRunning, domain.TaskStatusCompleted, "done")
	if !tr.IsValid() {
		t.Fatal("expected running->completed to be valid")
	}
	if tr.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if StateDescription(domain.TaskStatusBlocked) == "Unknown state" {
		t.Error("blocked should have a description")
	}
}
