package retry

import (
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// Policy holds the default RetryConfig per ErrorType.
type Policy struct {
	Transient domain.RetryConfig `yaml:"transient"`
	Retriable domain.RetryConfig `yaml:"retriable"`
	Fatal     domain.RetryConfig `yaml:"fatal"`
	Conflict  domain.RetryConfig `yaml:"conflict"`
}

func DefaultPolicy() Policy {
	return Policy{
		Transient: domain.RetryConfig{
			MaxAttempts:       5,
			Strategy:          domain.BackoffExponential,
			BaseDelay:         time.Second,
			MaxDelay:          30 * time.Second,
			PerAttemptTimeout: 30 * time.Second,
			JitterFraction:    0.2,
		},
		Retriable: domain.RetryConfig{
			MaxAttempts:       3,
			Strategy:          domain.BackoffLinear,
			BaseDelay:         2 * time.Second,
			MaxDelay:          20 * time.Second,
			PerAttemptTimeout: 60 * time.Second,
			JitterFraction:    0.2,
		},
		Fatal: domain.RetryConfig{
			MaxAttempts:       1,
			Strategy:          domain.BackoffFixed,
			PerAttemptTimeout: 60 * time.Second,
		},
		Conflict: domain.RetryConfig{
			MaxAttempts:       1,
			Strategy:          domain.BackoffFixed,
			PerAttemptTimeout: 60 * time.Second,
		},
	}
}

// For returns the default config for t. Unknown types get the Retriable
// config so they stay bounded.
func (p Policy) For(t domain.ErrorType) domain.RetryConfig {
	switch t {
	case domain.ErrorTypeTransient:
		return p.Transient
	case domain.ErrorTypeFatal:
		return p.Fatal
	case domain.ErrorTypeConflict:
		return p.Conflict
	default:
		return p.Retriable
	}
}
