package domain

import "time"

type BackoffStrategy string

const (
	BackoffExponential BackoffStrategy = "exponential"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffFibonacci   BackoffStrategy = "fibonacci"
)

// RetryConfig governs one retry sequence.
type RetryConfig struct {
	MaxAttempts       int             `yaml:"max_attempts"`
	Strategy          BackoffStrategy `yaml:"strategy"`
	BaseDelay         time.Duration   `yaml:"base_delay"`
	MaxDelay          time.Duration   `yaml:"max_delay"`
	PerAttemptTimeout time.Duration   `yaml:"per_attempt_timeout"`
	JitterFraction    float64         `yaml:"jitter_fraction"`
}

// RetryAttempt is one entry of a RetryHistory. DelayMs is the backoff slept
// after this attempt failed.
type RetryAttempt struct {
	AttemptNumber int       `json:"attemptNumber"`
	Timestamp     time.Time `json:"timestamp"`
	DelayMs       int64     `json:"delayMs"`
	Error         string    `json:"error,omitempty"`
	Success       bool      `json:"success"`
	// Rejected marks an attempt refused by an open circuit breaker; the
	// operation was not invoked.
	Rejected bool `json:"rejected,omitempty"`
}

type RetryHistory struct {
	OperationID   string         `json:"operationId"`
	ScopeKey      string         `json:"scopeKey"`
	StartedAt     time.Time      `json:"startedAt"`
	Attempts      []RetryAttempt `json:"attempts"`
	FinalSuccess  bool           `json:"finalSuccess"`
	TotalDuration time.Duration  `json:"totalDuration"`
	Sealed        bool           `json:"sealed"`
}

// Retries counts attempts that were followed by a backoff.
func (h *RetryHistory) Retries() int {
	n := 0
	for _, a := range h.Attempts {
		if a.DelayMs > 0 {
			n++
		}
	}
	return n
}

// Invocations counts attempts that actually called the operation.
func (h *RetryHistory) Invocations() int {
	n := 0
	for _, a := range h.Attempts {
		if !a.Rejected {
			n++
		}
	}
	return n
}

// Seal finalizes the history. Subsequent calls are no-ops.
func (h *RetryHistory) Seal(success bool, now time.Time) {
	if h.Sealed {
		return
	}
	h.FinalSuccess = success
	h.TotalDuration = now.Sub(h.StartedAt)
	h.Sealed = true
}

// Clone returns a copy safe to hand to other goroutines.
func (h *RetryHistory) Clone() *RetryHistory {
	cp := *h
	cp.Attempts = append([]RetryAttempt(nil), h.Attempts...)
	return &cp
}
