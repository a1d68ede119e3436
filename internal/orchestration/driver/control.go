package driver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/recorder"
)

// ResumeTask is the external resolution signal for a paused task. The task
// returns to Pending and so does every dependent it had blocked, unless
// another prerequisite still blocks that dependent.
func (d *Driver) ResumeTask(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if e.status != domain.TaskStatusPaused {
		return fmt.Errorf("%w: %s is %s, not paused", ErrInvalidTransition, id, e.status)
	}
	if err := d.transitionLocked(e, domain.TaskStatusPending, "resumed"); err != nil {
		return err
	}

	// A dependent stays blocked while another prerequisite still prevents
	// it from running; it is re-attributed to that root instead.
	unblocked := 0
	for changed := true; changed; {
		changed = false
		for _, dep := range d.sortedLocked() {
			if dep.status != domain.TaskStatusBlocked || dep.blockedBy != id {
				continue
			}
			switch root := d.blockingRootLocked(dep); root {
			case id:
				continue
			case "":
				if err := d.transitionLocked(dep, domain.TaskStatusPending, "prerequisite "+id+" resumed"); err != nil {
					continue
				}
				unblocked++
			default:
				dep.blockedBy = root
			}
			changed = true
		}
	}

	slog.Info("Task resumed", "task", id, "unblocked", unblocked)
	d.broadcastLocked()
	return nil
}

// CancelTask stops a task. A running task has its context cancelled and
// settles as Cancelled at its next suspension point. Pending, Blocked and
// Paused tasks are cancelled immediately.
func (d *Driver) CancelTask(id string) error {
	d.mu.Lock()
	e, ok := d.tasks[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if e.status == domain.TaskStatusRunning {
		cancel := e.cancel
		d.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		slog.Info("Cancellation requested", "task", id)
		return nil
	}

	if err := d.transitionLocked(e, domain.TaskStatusCancelled, "cancelled by operator"); err != nil {
		d.mu.Unlock()
		return err
	}
	now := d.now()
	e.completedAt = now
	blocked := d.blockDependentsLocked(id)
	task := e.task
	d.broadcastLocked()
	d.mu.Unlock()

	slog.Info("Task cancelled", "task", id, "blocked_dependents", len(blocked))
	ctx := context.Background()
	d.emit(ctx, domain.EventTaskFailed, id, domain.TaskFailedData{
		TaskID: id,
		Reason: "cancelled",
	})
	d.record(ctx, task, recorder.Outcome{
		Status:      domain.TaskStatusCancelled,
		StartedAt:   now,
		CompletedAt: now,
	})
	return nil
}
