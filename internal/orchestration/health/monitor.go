package health

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/driver"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
)

// Prober checks a backing service such as the database or redis.
type Prober interface {
	Health(ctx context.Context) error
}

// BreakerSource exposes circuit breaker snapshots.
type BreakerSource interface {
	Snapshots() []breaker.Snapshot
}

// TaskSource exposes the driver's task table.
type TaskSource interface {
	Tasks() []driver.TaskInfo
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	breakers BreakerSource
	tasks    TaskSource
	probes   map[string]Prober
	cacheFor time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

type MonitorOption func(*Monitor)

// WithProbe registers a named dependency check. A failing probe makes the
// system critical.
func WithProbe(name string, p Prober) MonitorOption {
	return func(m *Monitor) {
		if p != nil {
			m.probes[name] = p
		}
	}
}

// WithCacheFor sets how long a report is reused. Zero disables caching.
func WithCacheFor(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.cacheFor = d }
}

// NewMonitor creates a new health monitor.
func NewMonitor(breakers BreakerSource, tasks TaskSource, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		breakers: breakers,
		tasks:    tasks,
		probes:   make(map[string]Prober),
		cacheFor: 5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CheckHealth builds a report. Results are cached briefly so a busy
// scraper does not hammer the database.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && m.cacheFor > 0 && now.Sub(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Tasks:        make(map[domain.TaskStatus]int),
		CheckedAt:    now,
	}

	storeDown := false
	for name, p := range m.probes {
		c := ComponentHealth{Name: name, Status: StatusHealthy}
		if err := p.Health(ctx); err != nil {
			c.Status = StatusCritical
			c.Error = err.Error()
			storeDown = true
		}
		report.Components = append(report.Components, c)
	}
	slices.SortFunc(report.Components, func(a, b ComponentHealth) int {
		return strings.Compare(a.Name, b.Name)
	})

	if m.breakers != nil {
		report.Breakers = m.breakers.Snapshots()
		for _, s := range report.Breakers {
			if s.IsOpen {
				report.OpenBreakers++
			}
		}
	}

	if m.tasks != nil {
		for _, t := range m.tasks.Tasks() {
			report.Tasks[t.Status]++
			if t.Status == domain.TaskStatusPaused {
				report.PausedTasks = append(report.PausedTasks, t.Task.ID)
			}
		}
	}

	allOpen := len(report.Breakers) > 0 && report.OpenBreakers == len(report.Breakers)
	switch {
	case storeDown || allOpen:
		report.SystemStatus = StatusCritical
	case report.OpenBreakers > 0 || len(report.PausedTasks) > 0:
		report.SystemStatus = StatusDegraded
	}

	m.lastCheck = now
	m.lastReport = &report
	return report
}
