package domain

import "time"

// ExecutionRecord is the append-only outcome of one task's retry sequence.
type ExecutionRecord struct {
	ID                string         `json:"id" db:"id"`
	TaskID            string         `json:"taskId" db:"task_id"`
	AgentType         string         `json:"agentType" db:"agent_type"`
	TaskType          string         `json:"taskType" db:"task_type"`
	Phase             string         `json:"phase" db:"phase"`
	GoalHash          string         `json:"goalHash" db:"goal_hash"`
	RunID             string         `json:"runId,omitempty" db:"run_id"`
	Dependencies      []string       `json:"dependencies" db:"-"`
	EstimatedDuration time.Duration  `json:"estimatedDuration" db:"-"`
	ActualDuration    time.Duration  `json:"actualDuration" db:"-"`
	Status            TaskStatus     `json:"status" db:"status"`
	ErrorCategory     ErrorCategory  `json:"errorCategory,omitempty" db:"error_category"`
	ErrorMessage      string         `json:"errorMessage,omitempty" db:"error_message"`
	Attempts          int            `json:"attempts" db:"attempts"`
	Context           map[string]any `json:"context,omitempty" db:"-"`
	StartedAt         time.Time      `json:"startedAt" db:"started_at"`
	CompletedAt       time.Time      `json:"completedAt" db:"completed_at"`
	CreatedAt         time.Time      `json:"createdAt" db:"created_at"`
}

// Succeeded reports whether the record counts as a success.
func (r *ExecutionRecord) Succeeded() bool {
	return r.Status == TaskStatusCompleted
}

// Decisive reports whether the record counts toward success rates.
// Cancelled and paused outcomes say nothing about the agent.
func (r *ExecutionRecord) Decisive() bool {
	return r.Status == TaskStatusCompleted || r.Status == TaskStatusFailed
}
