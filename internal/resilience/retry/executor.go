package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/backoff"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/classify"
)

// Operation is the unit of work being retried. It must honor ctx.
type Operation func(ctx context.Context) (any, error)

// Result is returned for every sequence, successful or not.
type Result struct {
	Value   any
	Outcome Outcome
	// Classification of the last failed attempt, nil if none failed.
	Classification *domain.ErrorClassification
	History        *domain.RetryHistory
}

// Executor runs operations under classification, backoff and circuit
// breaking. It is safe for concurrent use.
type Executor struct {
	breakers   *breaker.Registry
	policy     Policy
	classifier *classify.Classifier
	backoff    *backoff.Calculator
	history    *HistoryLog
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

type Option func(*Executor)

func WithClassifier(c *classify.Classifier) Option {
	return func(e *Executor) { e.classifier = c }
}

func WithBackoff(b *backoff.Calculator) Option {
	return func(e *Executor) { e.backoff = b }
}

// WithSleep replaces the interruptible sleep between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func WithHistoryLog(l *HistoryLog) Option {
	return func(e *Executor) { e.history = l }
}

func NewExecutor(breakers *breaker.Registry, policy Policy, opts ...Option) *Executor {
	e := &Executor{
		breakers:   breakers,
		policy:     policy,
		classifier: classify.New(),
		backoff:    backoff.New(nil),
		history:    NewHistoryLog(256),
		sleep:      sleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// History exposes the retained retry histories.
func (e *Executor) History() *HistoryLog {
	return e.history
}

// ExecuteWithRetry invokes op until it succeeds, a terminal recovery action
// is classified, attempts are exhausted, the breaker for scopeKey rejects
// the attempt, or ctx is cancelled.
//
// When cfg is nil the governing config is chosen from the policy by the
// type of the first classified failure and kept for the rest of the
// sequence; the first attempt runs with the Transient timeout. An empty
// scopeKey disables circuit breaking.
func (e *Executor) ExecuteWithRetry(ctx context.Context, operationID string, op Operation, cfg *domain.RetryConfig, scopeKey string) (*Result, error) {
	h := &domain.RetryHistory{
		OperationID: operationID,
		ScopeKey:    scopeKey,
		StartedAt:   e.now(),
	}

	governing := e.policy.Transient
	locked := false
	if cfg != nil {
		governing = *cfg
		locked = true
	}

	var last *domain.ErrorClassification
	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return e.finish(h, OutcomeCancelled, last, err)
		}

		if scopeKey != "" && !e.breakers.Allow(scopeKey) {
			snap := e.breakers.Get(scopeKey).Snapshot()
			coe := &CircuitOpenError{
				Scope:        scopeKey,
				FailureCount: snap.FailureCount,
				OpenedAt:     snap.OpenedAt,
			}
			h.Attempts = append(h.Attempts, domain.RetryAttempt{
				AttemptNumber: n,
				Timestamp:     e.now(),
				Error:         coe.Error(),
				Rejected:      true,
			})
			metrics.CircuitRejections.WithLabelValues(scopeKey).Inc()
			return e.finish(h, OutcomeCircuitOpen, last, coe)
		}

		attempt := domain.RetryAttempt{AttemptNumber: n, Timestamp: e.now()}
		value, err := invoke(ctx, op, governing.PerAttemptTimeout)
		if err == nil {
			attempt.Success = true
			h.Attempts = append(h.Attempts, attempt)
			if scopeKey != "" {
				e.breakers.RecordSuccess(scopeKey)
			}
			res, _ := e.finish(h, OutcomeSucceeded, last, nil)
			res.Value = value
			return res, nil
		}

		attempt.Error = err.Error()
		if ctx.Err() != nil {
			h.Attempts = append(h.Attempts, attempt)
			return e.finish(h, OutcomeCancelled, last, ctx.Err())
		}

		c := e.classifier.Classify(err)
		last = &c
		metrics.RetryAttempts.WithLabelValues(string(c.Category)).Inc()
		if scopeKey != "" {
			e.breakers.RecordFailure(scopeKey, c.Type)
		}
		if !locked {
			governing = e.policy.For(c.Type)
			locked = true
		}

		var outcome Outcome
		switch c.RecoveryAction {
		case domain.ActionFailImmediately:
			outcome = OutcomeFailed
		case domain.ActionPauseWorkflow:
			outcome = OutcomePaused
		case domain.ActionCircuitBreak:
			outcome = OutcomeCircuitBreak
		case domain.ActionRollback:
			outcome = OutcomeRollback
		case domain.ActionRetry, domain.ActionRetryWithBackoff:
			if n >= governing.MaxAttempts {
				outcome = OutcomeExhausted
				break
			}
			delay := e.backoff.Delay(n, governing)
			attempt.DelayMs = delay.Milliseconds()
			h.Attempts = append(h.Attempts, attempt)

			slog.Debug("Retrying operation",
				"operation", operationID,
				"attempt", n,
				"max_attempts", governing.MaxAttempts,
				"category", c.Category,
				"delay", delay,
			)

			if err := e.sleep(ctx, delay); err != nil {
				return e.finish(h, OutcomeCancelled, last, err)
			}
			continue
		default:
			outcome = OutcomeFailed
		}

		h.Attempts = append(h.Attempts, attempt)
		return e.finish(h, outcome, last, err)
	}
}

func (e *Executor) finish(h *domain.RetryHistory, outcome Outcome, c *domain.ErrorClassification, cause error) (*Result, error) {
	h.Seal(outcome == OutcomeSucceeded, e.now())
	e.history.Add(h)

	res := &Result{Outcome: outcome, Classification: c, History: h}
	if outcome == OutcomeSucceeded {
		return res, nil
	}

	var coe *CircuitOpenError
	if errors.As(cause, &coe) {
		return res, coe
	}

	te := &TerminalError{
		OperationID: h.OperationID,
		Outcome:     outcome,
		Attempts:    h.Invocations(),
		Err:         cause,
	}
	if c != nil {
		te.Classification = *c
	}
	return res, te
}

type invokeResult struct {
	value any
	err   error
}

// invoke runs op bounded by timeout. A timeout is reported as an error
// whose message classifies as a network timeout.
func invoke(ctx context.Context, op Operation, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return safeCall(ctx, op)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan invokeResult, 1)
	go func() {
		v, err := safeCall(attemptCtx, op)
		done <- invokeResult{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("attempt timeout after %s: %w", timeout, r.err)
		}
		return r.value, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("attempt timeout after %s: %w", timeout, context.DeadlineExceeded)
	}
}

func safeCall(ctx context.Context, op Operation) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
