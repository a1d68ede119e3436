package backoff

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// Calculator computes per-attempt delays. The zero value is not usable;
// use New or the package-level Delay.
type Calculator struct {
	rand func() float64
}

// New returns a calculator drawing jitter from randFn, which must return
// values in [0,1). A nil randFn uses math/rand/v2.
func New(randFn func() float64) *Calculator {
	if randFn == nil {
		randFn = rand.Float64
	}
	return &Calculator{rand: randFn}
}

var std = New(nil)

// Delay returns the jittered delay to sleep after the given 1-based attempt.
func Delay(attempt int, cfg domain.RetryConfig) time.Duration {
	return std.Delay(attempt, cfg)
}

// Delay returns Base(attempt, cfg) widened by up to JitterFraction of itself.
func (c *Calculator) Delay(attempt int, cfg domain.RetryConfig) time.Duration {
	d := Base(attempt, cfg)
	if cfg.JitterFraction <= 0 || d <= 0 {
		return d
	}
	jitter := float64(d) * c.rand() * cfg.JitterFraction
	if jitter >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	// saturate rather than wrap when the delay is already near the limit
	if j := time.Duration(jitter); j <= time.Duration(math.MaxInt64)-d {
		return d + j
	}
	return time.Duration(math.MaxInt64)
}

// Base returns the un-jittered delay for the strategy, capped at MaxDelay.
// A zero MaxDelay means uncapped.
func Base(attempt int, cfg domain.RetryConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(cfg.BaseDelay)

	var d float64
	switch cfg.Strategy {
	case domain.BackoffLinear:
		d = base * float64(attempt)
	case domain.BackoffFixed:
		d = base
	case domain.BackoffFibonacci:
		d = base * fib(attempt)
	default:
		d = base * math.Pow(2, float64(attempt-1))
	}

	limit := float64(math.MaxInt64)
	if cfg.MaxDelay > 0 {
		limit = float64(cfg.MaxDelay)
	}
	if d >= limit {
		if cfg.MaxDelay > 0 {
			return cfg.MaxDelay
		}
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// fib returns the n-th Fibonacci number with fib(1) = fib(2) = 1.
func fib(n int) float64 {
	a, b := 0.0, 1.0
	for i := 1; i < n; i++ {
		a, b = b, a+b
		if math.IsInf(b, 1) {
			return b
		}
	}
	return b
}
