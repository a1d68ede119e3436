package config

import (
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/redis"
	"github.com/HR-AR/Project-Conductor-sub000/internal/infra/storage/postgres"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/analytics"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/lessons"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/checkpoint"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server         ServerConfig      `yaml:"server"`
	Logging        LoggingConfig     `yaml:"logging"`
	Database       postgres.Config   `yaml:"database"`
	Redis          redis.Config      `yaml:"redis"`
	Orchestration  driver.Config     `yaml:"orchestration"`
	Retry          retry.Policy      `yaml:"retry"`
	CircuitBreaker breaker.Config    `yaml:"circuit_breaker"`
	Checkpoint     checkpoint.Config `yaml:"checkpoint"`
	Analytics      analytics.Config  `yaml:"analytics"`
	Learning       lessons.Config    `yaml:"learning"`
	Retention      RetentionConfig   `yaml:"retention"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// RetentionConfig controls pruning of execution records. Records = 0 keeps
// history forever.
type RetentionConfig struct {
	Records       time.Duration `yaml:"records"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// Default returns a configuration with every section at its default.
func Default() AppConfig {
	return AppConfig{
		Server:         ServerConfig{Port: 8080},
		Logging:        LoggingConfig{Level: "info"},
		Database:       postgres.DefaultConfig(),
		Redis:          redis.DefaultConfig(),
		Orchestration:  driver.DefaultConfig(),
		Retry:          retry.DefaultPolicy(),
		CircuitBreaker: breaker.DefaultConfig(),
		Checkpoint:     checkpoint.DefaultConfig(),
		Analytics:      analytics.DefaultConfig(),
		Learning:       lessons.DefaultConfig(),
		Retention:      RetentionConfig{PruneInterval: time.Hour},
	}
}
