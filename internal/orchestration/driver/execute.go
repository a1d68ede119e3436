package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
	"github.com/HR-AR/Project-Conductor-sub000/internal/learning/recorder"
	"github.com/HR-AR/Project-Conductor-sub000/internal/orchestration/metrics"
	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/retry"
)

const maxSummaryLen = 200

func (e *entry) scopeKey(task domain.Task) string {
	if e.scope != "" {
		return e.scope
	}
	return task.AgentType
}

// execute runs one dispatch of a task to a terminal outcome or back to
// Pending after a rollback.
func (d *Driver) execute(ctx context.Context, e *entry, task domain.Task) {
	// events and records must survive task cancellation
	bg := context.WithoutCancel(ctx)

	applied := d.applyLessons(ctx, e, &task)
	startedAt := d.now()

	d.emit(bg, domain.EventTaskStarted, task.ID, domain.TaskStartedData{
		TaskID:    task.ID,
		AgentType: task.AgentType,
		TaskType:  task.TaskType,
		Timestamp: startedAt,
	})

	if task.Risky {
		d.checkpointBefore(ctx, e, task)
	}

	scope := e.scopeKey(task)
	op := func(opCtx context.Context) (any, error) {
		return e.op(opCtx, Execution{Task: task, State: d.state})
	}

	res, err := d.executor.ExecuteWithRetry(ctx, task.ID, op, e.retry, scope)
	attempts := res.History.Invocations()

	d.mu.Lock()
	e.attempts += attempts
	e.classification = res.Classification
	e.err = err
	d.mu.Unlock()

	out := recorder.Outcome{
		Attempts:       attempts,
		Classification: res.Classification,
		Err:            err,
		StartedAt:      startedAt,
	}

	switch res.Outcome {
	case retry.OutcomeSucceeded:
		d.complete(bg, e, task, res.Value, out, applied)

	case retry.OutcomeCancelled:
		d.cancelRunning(bg, e, task, out)

	case retry.OutcomePaused:
		d.pause(bg, e, task, res, out)

	case retry.OutcomeRollback:
		if d.rollback(bg, e, task) {
			return
		}
		escalated := escalate(res.Classification)
		out.Classification = escalated
		d.mu.Lock()
		e.classification = escalated
		d.mu.Unlock()
		d.fail(bg, e, task, escalated, out, "rollback limit reached", applied)

	case retry.OutcomeCircuitBreak:
		reason := "circuit break"
		if res.Classification != nil {
			reason = fmt.Sprintf("circuit break on %s", res.Classification.Category)
		}
		d.breakers.Trip(scope, reason)
		d.fail(bg, e, task, res.Classification, out, string(res.Outcome), applied)

	case retry.OutcomeCircuitOpen:
		d.fail(bg, e, task, nil, out, string(res.Outcome), nil)

	default:
		d.fail(bg, e, task, res.Classification, out, string(res.Outcome), applied)
	}
}

// applyLessons emits a recommendation event for every applicable lesson and,
// with auto-optimization on, applies the top AgentSelection and
// TimeEstimation lessons to task. It returns the ids of applied lessons.
func (d *Driver) applyLessons(ctx context.Context, e *entry, task *domain.Task) []string {
	if !d.cfg.EnableLearning || d.learning == nil {
		return nil
	}

	recs, err := d.learning.GetRecommendations(ctx, task)
	if err != nil {
		slog.Warn("Failed to get recommendations", "task", task.ID, "error", err)
		return nil
	}

	bg := context.WithoutCancel(ctx)
	for _, l := range recs {
		d.emit(bg, domain.EventRecommendation, task.ID, domain.RecommendationData{
			TaskID:     task.ID,
			LessonID:   l.ID,
			LessonType: l.Type,
			Payload:    l.Payload,
			Confidence: l.Confidence,
		})
	}
	if !d.cfg.AutoOptimize {
		return nil
	}

	var applied []string
	for _, l := range recs {
		if l.Type != domain.LessonAgentSelection {
			continue
		}
		var p domain.AgentSelectionPayload
		if err := l.DecodePayload(&p); err != nil || p.Agent == "" {
			continue
		}
		if p.Agent != task.AgentType {
			from := task.AgentType
			task.AgentType = p.Agent
			applied = append(applied, l.ID)
			metrics.AgentSwitches.Inc()
			slog.Info("Switching agent", "task", task.ID, "from", from, "to", p.Agent, "confidence", l.Confidence)
			d.emit(bg, domain.EventAgentSwitched, task.ID, domain.AgentSwitchedData{
				TaskID:     task.ID,
				FromAgent:  from,
				ToAgent:    p.Agent,
				Reason:     fmt.Sprintf("%s succeeds on %s %.0f%% of the time", p.Agent, p.TaskType, p.SuccessRate*100),
				Confidence: l.Confidence,
			})
		}
		break
	}
	for _, l := range recs {
		if l.Type != domain.LessonTimeEstimation || l.AgentType != task.AgentType {
			continue
		}
		var p domain.TimeEstimationPayload
		if err := l.DecodePayload(&p); err != nil || p.CorrectedEstimate <= 0 {
			continue
		}
		task.EstimatedDuration = p.CorrectedEstimate
		applied = append(applied, l.ID)
		break
	}

	d.mu.Lock()
	e.task.AgentType = task.AgentType
	e.task.EstimatedDuration = task.EstimatedDuration
	e.applied = append(e.applied, applied...)
	d.mu.Unlock()
	return applied
}

// checkpointBefore snapshots the shared state and breaker states. A failed
// checkpoint is logged; the task still runs but cannot be rolled back.
func (d *Driver) checkpointBefore(ctx context.Context, e *entry, task domain.Task) {
	if d.checkpoints == nil {
		return
	}
	var agentStates map[string]string
	if d.breakers != nil {
		agentStates = d.breakers.States()
	}
	cp, err := d.checkpoints.Create(ctx, d.state.CheckpointState(), agentStates, domain.CheckpointMetadata{
		Description: fmt.Sprintf("before %s (%s)", task.ID, task.TaskType),
		Automatic:   true,
		TriggeredBy: task.ID,
	})
	if err != nil {
		slog.Warn("Failed to checkpoint risky task", "task", task.ID, "error", err)
		return
	}
	metrics.Checkpoints.Set(float64(d.checkpoints.Len()))

	d.mu.Lock()
	e.checkpointID = cp.ID
	d.mu.Unlock()
}

func (d *Driver) complete(ctx context.Context, e *entry, task domain.Task, value any, out recorder.Outcome, applied []string) {
	out.Status = domain.TaskStatusCompleted
	out.CompletedAt = d.now()
	d.settle(e, domain.TaskStatusCompleted, "succeeded", out.CompletedAt)

	d.emit(ctx, domain.EventTaskCompleted, task.ID, domain.TaskCompletedData{
		TaskID:        task.ID,
		DurationMs:    out.CompletedAt.Sub(out.StartedAt).Milliseconds(),
		ResultSummary: summarize(value),
	})
	d.record(ctx, task, out)
	d.feedback(ctx, applied, true)
}

func (d *Driver) fail(ctx context.Context, e *entry, task domain.Task, c *domain.ErrorClassification, out recorder.Outcome, reason string, applied []string) {
	out.Status = domain.TaskStatusFailed
	out.CompletedAt = d.now()
	blocked := d.settle(e, domain.TaskStatusFailed, reason, out.CompletedAt)

	slog.Warn("Task failed",
		"task", task.ID,
		"reason", reason,
		"attempts", out.Attempts,
		"blocked_dependents", len(blocked),
		"error", out.Err,
	)
	d.emit(ctx, domain.EventTaskFailed, task.ID, domain.TaskFailedData{
		TaskID:         task.ID,
		Classification: c,
		AttemptsUsed:   out.Attempts,
		Reason:         reason,
	})
	d.record(ctx, task, out)
	d.feedback(ctx, applied, false)
}

func (d *Driver) cancelRunning(ctx context.Context, e *entry, task domain.Task, out recorder.Outcome) {
	out.Status = domain.TaskStatusCancelled
	out.CompletedAt = d.now()
	d.settle(e, domain.TaskStatusCancelled, "cancelled", out.CompletedAt)

	slog.Info("Task cancelled", "task", task.ID, "attempts", out.Attempts)
	d.emit(ctx, domain.EventTaskFailed, task.ID, domain.TaskFailedData{
		TaskID:       task.ID,
		AttemptsUsed: out.Attempts,
		Reason:       string(retry.OutcomeCancelled),
	})
	d.record(ctx, task, out)
}

func (d *Driver) pause(ctx context.Context, e *entry, task domain.Task, res *retry.Result, out recorder.Outcome) {
	out.Status = domain.TaskStatusPaused
	out.CompletedAt = d.now()
	blocked := d.settle(e, domain.TaskStatusPaused, "conflict requires resolution", out.CompletedAt)

	data := domain.WorkflowPausedData{TaskID: task.ID, BlockedTasks: blocked}
	if c := res.Classification; c != nil {
		data.ConflictCategory = c.Category
		data.Severity = c.Severity
		data.Details = c.Message
	}
	slog.Warn("Workflow paused",
		"task", task.ID,
		"category", data.ConflictCategory,
		"blocked_dependents", len(blocked),
	)
	d.emit(ctx, domain.EventWorkflowPaused, task.ID, data)
	d.record(ctx, task, out)
}

// settle moves e from Running to a post-run status. Failed, Cancelled and
// Paused block every pending dependent; the blocked ids are returned.
func (d *Driver) settle(e *entry, to domain.TaskStatus, reason string, at time.Time) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transitionLocked(e, to, reason); err != nil {
		slog.Error("Unexpected task state", "task", e.task.ID, "error", err)
		return nil
	}
	e.completedAt = at
	if to == domain.TaskStatusCompleted {
		return nil
	}
	return d.blockDependentsLocked(e.task.ID)
}

// rollback restores the task's checkpoint and re-queues it, at most
// MaxAutoRollbacks times per task. It reports whether the task was
// re-queued.
func (d *Driver) rollback(ctx context.Context, e *entry, task domain.Task) bool {
	d.mu.Lock()
	n, cpID := e.rollbacks, e.checkpointID
	d.mu.Unlock()

	if n >= d.cfg.MaxAutoRollbacks {
		metrics.Rollbacks.WithLabelValues("escalated").Inc()
		return false
	}

	if cpID != "" && d.checkpoints != nil {
		cp, err := d.checkpoints.Rollback(ctx, cpID)
		if err == nil {
			err = d.state.RestoreCheckpoint(cp)
		}
		if err != nil {
			slog.Error("Rollback failed", "task", task.ID, "checkpoint", cpID, "error", err)
			metrics.Rollbacks.WithLabelValues("failed").Inc()
			return false
		}
		slog.Info("Restored checkpoint", "task", task.ID, "checkpoint", cpID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.transitionLocked(e, domain.TaskStatusPending, "rolled back"); err != nil {
		slog.Error("Failed to re-queue task", "task", task.ID, "error", err)
		return false
	}
	e.rollbacks++
	metrics.Rollbacks.WithLabelValues("requeued").Inc()
	return true
}

// escalate turns a rollback classification into a fatal one.
func escalate(c *domain.ErrorClassification) *domain.ErrorClassification {
	out := domain.ErrorClassification{Category: domain.CategoryConcurrentModification}
	if c != nil {
		out = *c
	}
	out.Type = domain.ErrorTypeFatal
	out.Severity = domain.SeverityCritical
	out.RecoveryAction = domain.ActionFailImmediately
	return &out
}

func (d *Driver) record(ctx context.Context, task domain.Task, out recorder.Outcome) {
	if d.recorder == nil {
		return
	}
	if _, err := d.recorder.Record(ctx, &task, out); err != nil {
		slog.Error("Failed to record execution", "task", task.ID, "error", err)
	}
}

// feedback reports the outcome of a run to every lesson applied to it.
func (d *Driver) feedback(ctx context.Context, lessonIDs []string, success bool) {
	if d.learning == nil {
		return
	}
	for _, id := range lessonIDs {
		if _, err := d.learning.UpdateEffectiveness(ctx, id, success); err != nil {
			slog.Warn("Failed to update lesson effectiveness", "lesson", id, "error", err)
		}
	}
}

func summarize(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprint(v)
	if len(s) <= maxSummaryLen {
		return s
	}
	// cut on a rune boundary
	i := maxSummaryLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "..."
}
