package retry

import (
	"fmt"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
)

// Outcome is how a retry sequence ended.
type Outcome string

const (
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeExhausted    Outcome = "exhausted"
	OutcomeFailed       Outcome = "failed"
	OutcomePaused       Outcome = "paused"
	OutcomeCircuitBreak Outcome = "circuit_break"
	OutcomeRollback     Outcome = "rollback"
	OutcomeCircuitOpen  Outcome = "circuit_open"
	OutcomeCancelled    Outcome = "cancelled"
)

// CircuitOpenError reports that the operation was not attempted because
// the scope's breaker is open.
type CircuitOpenError struct {
	Scope        string
	FailureCount int
	OpenedAt     time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for scope %s (%d failures since %s)",
		e.Scope, e.FailureCount, e.OpenedAt.Format(time.RFC3339))
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == breaker.ErrOpen
}

// TerminalError is returned when a sequence ends without success after the
// operation was attempted.
type TerminalError struct {
	OperationID    string
	Outcome        Outcome
	Classification domain.ErrorClassification
	Attempts       int
	Err            error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("operation %s %s after %d attempt(s): %v", e.OperationID, e.Outcome, e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}
