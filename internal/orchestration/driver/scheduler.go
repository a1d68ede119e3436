package driver

import (
	"context"
	"log/slog"
	"slices"
	"sort"

	"golang.org/x/sync/semaphore"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
)

// Run dispatches ready tasks until ctx is cancelled. A task is ready when
// it is Pending and all of its dependencies Completed. Ready tasks start in
// priority order, then submission order. On return every task started by
// Run has finished.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.wg.Wait()
		d.mu.Lock()
		d.running = false
		d.broadcastLocked()
		d.mu.Unlock()
	}()

	limit := d.cfg.Concurrency()
	sem := semaphore.NewWeighted(int64(limit))
	slog.Info("Driver started", "max_concurrent_tasks", limit)

	for {
		d.mu.Lock()
		for _, e := range d.readyLocked() {
			if !sem.TryAcquire(1) {
				break
			}
			d.startLocked(ctx, e, sem)
		}
		changed := d.changed
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			slog.Info("Driver stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-changed:
		}
	}
}

func (d *Driver) readyLocked() []*entry {
	var ready []*entry
	for _, e := range d.tasks {
		if e.status != domain.TaskStatusPending {
			continue
		}
		ok := true
		for _, dep := range e.task.Dependencies {
			if d.tasks[dep].status != domain.TaskStatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, e)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].task.Priority != ready[j].task.Priority {
			return ready[i].task.Priority > ready[j].task.Priority
		}
		return ready[i].seq < ready[j].seq
	})
	return ready
}

// startLocked marks e Running and launches it. The task context is created
// here so CancelTask can reach it as soon as the status is visible.
func (d *Driver) startLocked(ctx context.Context, e *entry, sem *semaphore.Weighted) {
	taskCtx, cancel := context.WithCancel(ctx)
	if err := d.transitionLocked(e, domain.TaskStatusRunning, "dispatched"); err != nil {
		cancel()
		sem.Release(1)
		slog.Error("Failed to start task", "task", e.task.ID, "error", err)
		return
	}
	e.cancel = cancel
	e.startedAt = d.now()
	e.err = nil
	e.classification = nil

	task := e.task
	task.Dependencies = slices.Clone(e.task.Dependencies)

	metrics.TasksInFlight.Inc()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			cancel()
			sem.Release(1)
			metrics.TasksInFlight.Dec()
			d.mu.Lock()
			e.cancel = nil
			d.broadcastLocked()
			d.mu.Unlock()
		}()
		d.execute(taskCtx, e, task)
	}()
}

// WaitIdle blocks until no task is Pending or Running, or ctx is done.
// Paused and Blocked tasks do not count as active.
func (d *Driver) WaitIdle(ctx context.Context) error {
	for {
		d.mu.Lock()
		idle := true
		for _, e := range d.tasks {
			if e.status == domain.TaskStatusPending || e.status == domain.TaskStatusRunning {
				idle = false
				break
			}
		}
		changed := d.changed
		d.mu.Unlock()

		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
