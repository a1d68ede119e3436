package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

// Load reads configuration from a YAML file. Keys absent from the file keep
// their defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data and decodes it over the
// defaults.
func Parse(data []byte) (*AppConfig, error) {
	cfg := Default()
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Retention.Records > 0 && cfg.Retention.PruneInterval == 0 {
		cfg.Retention.PruneInterval = Default().Retention.PruneInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges that would otherwise surface as runtime misbehavior.
func (c *AppConfig) Validate() error {
	var errs []error
	o := c.Orchestration
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("orchestration.min_confidence must be within [0,1], got %v", o.MinConfidence))
	}
	if o.MaxConcurrentTasks < 1 {
		errs = append(errs, fmt.Errorf("orchestration.max_concurrent_tasks must be >= 1, got %d", o.MaxConcurrentTasks))
	}
	if o.MaxAutoRollbacks < 0 {
		errs = append(errs, fmt.Errorf("orchestration.max_auto_rollbacks must be >= 0"))
	}
	if c.Checkpoint.Capacity < 1 {
		errs = append(errs, fmt.Errorf("checkpoint.capacity must be >= 1, got %d", c.Checkpoint.Capacity))
	}
	for name, rc := range map[string]domain.RetryConfig{
		"transient": c.Retry.Transient,
		"retriable": c.Retry.Retriable,
		"fatal":     c.Retry.Fatal,
		"conflict":  c.Retry.Conflict,
	} {
		if rc.MaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("retry.%s.max_attempts must be >= 1", name))
		}
		if rc.JitterFraction < 0 || rc.JitterFraction > 1 {
			errs = append(errs, fmt.Errorf("retry.%s.jitter_fraction must be within [0,1]", name))
		}
		switch rc.Strategy {
		case domain.BackoffExponential, domain.BackoffLinear, domain.BackoffFixed, domain.BackoffFibonacci:
		default:
			errs = append(errs, fmt.Errorf("retry.%s.strategy %q is not supported", name, rc.Strategy))
		}
	}
	if c.CircuitBreaker.TransientThreshold < 1 || c.CircuitBreaker.RetriableThreshold < 1 {
		errs = append(errs, fmt.Errorf("circuit_breaker thresholds must be >= 1"))
	}
	if c.Analytics.MinSamples < 1 {
		errs = append(errs, fmt.Errorf("analytics.min_samples must be >= 1"))
	}
	return errors.Join(errs...)
}
