package domain

import "time"

type EventType string

const (
	EventTaskStarted    EventType = "task-started"
	EventTaskCompleted  EventType = "task-completed"
	EventTaskFailed     EventType = "task-failed"
	EventWorkflowPaused EventType = "workflow-paused"
	EventCircuitBreak   EventType = "circuit-break"
	EventRecommendation EventType = "recommendation"
	EventAgentSwitched  EventType = "agent-switched"
)

// Event is what the engine emits to external collaborators. Data holds one
// of the payload structs below.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"taskId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type TaskStartedData struct {
	TaskID    string    `json:"taskId"`
	AgentType string    `json:"agentType"`
	TaskType  string    `json:"taskType"`
	Timestamp time.Time `json:"timestamp"`
}

type TaskCompletedData struct {
	TaskID        string `json:"taskId"`
	DurationMs    int64  `json:"durationMs"`
	ResultSummary string `json:"resultSummary"`
}

type TaskFailedData struct {
	TaskID         string               `json:"taskId"`
	Classification *ErrorClassification `json:"classification,omitempty"`
	AttemptsUsed   int                  `json:"attemptsUsed"`
	// Reason distinguishes refusals (circuit_open) from classified failures.
	Reason string `json:"reason,omitempty"`
}

type WorkflowPausedData struct {
	TaskID           string        `json:"taskId"`
	ConflictCategory ErrorCategory `json:"conflictCategory"`
	Severity         Severity      `json:"severity"`
	Details          string        `json:"details"`
	BlockedTasks     []string      `json:"blockedTasks,omitempty"`
}

type CircuitBreakData struct {
	ScopeKey     string    `json:"scopeKey"`
	FailureCount int       `json:"failureCount"`
	OpenedAt     time.Time `json:"openedAt"`
}

type RecommendationData struct {
	TaskID     string     `json:"taskId"`
	LessonID   string     `json:"lessonId"`
	LessonType LessonType `json:"lessonType"`
	Payload    any        `json:"payload"`
	Confidence float64    `json:"confidence"`
}

type AgentSwitchedData struct {
	TaskID     string  `json:"taskId"`
	FromAgent  string  `json:"fromAgent"`
	ToAgent    string  `json:"toAgent"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}
