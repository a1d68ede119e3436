// Package health provides system health monitoring and the operator HTTP API.
package health

import (
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the result of probing one dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus              `json:"system_status"`
	Components   []ComponentHealth         `json:"components"`
	Breakers     []breaker.Snapshot        `json:"breakers"`
	OpenBreakers int                       `json:"open_breakers"`
	Tasks        map[domain.TaskStatus]int `json:"tasks"`
	PausedTasks  []string                  `json:"paused_tasks,omitempty"`
	CheckedAt    time.Time                 `json:"checked_at"`
}
