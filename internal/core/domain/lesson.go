package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

type LessonType string

const (
	LessonAgentSelection  LessonType = "agent_selection"
	LessonTaskOrdering    LessonType = "task_ordering"
	LessonTimeEstimation  LessonType = "time_estimation"
	LessonErrorPrevention LessonType = "error_prevention"
	LessonParallelization LessonType = "parallelization"
)

// Lesson is a learned, confidence-scored recommendation. PatternHash is
// unique per Type.
type Lesson struct {
	ID          string          `json:"id"`
	Type        LessonType      `json:"type"`
	PatternHash string          `json:"patternHash"`
	AgentType   string          `json:"agentType,omitempty"`
	TaskType    string          `json:"taskType,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Confidence  float64         `json:"confidence"`
	// Effectiveness is the moving average of outcomes after the lesson was applied.
	Effectiveness float64   `json:"effectiveness"`
	UsageCount    int       `json:"usageCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Score ranks lessons for recommendation.
func (l *Lesson) Score() float64 {
	return l.Confidence * l.Effectiveness
}

func (l *Lesson) DecodePayload(v any) error {
	return json.Unmarshal(l.Payload, v)
}

func (l *Lesson) Clone() *Lesson {
	cp := *l
	cp.Payload = append(json.RawMessage(nil), l.Payload...)
	return &cp
}

// PatternHash derives the dedup key of a lesson from its identifying parts.
func PatternHash(t LessonType, parts ...string) string {
	sum := sha256.Sum256([]byte(string(t) + "|" + strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

type AgentSelectionPayload struct {
	TaskType     string             `json:"taskType"`
	Agent        string             `json:"agent"`
	SuccessRate  float64            `json:"successRate"`
	Samples      int                `json:"samples"`
	Alternatives map[string]float64 `json:"alternatives,omitempty"`
}

type TaskOrderingPayload struct {
	Sequence    []string `json:"sequence"`
	SuccessRate float64  `json:"successRate"`
	Goals       int      `json:"goals"`
}

type TimeEstimationPayload struct {
	AgentType         string        `json:"agentType"`
	TaskType          string        `json:"taskType"`
	Ratio             float64       `json:"ratio"`
	CorrectedEstimate time.Duration `json:"correctedEstimate"`
	P95               time.Duration `json:"p95"`
	Samples           int           `json:"samples"`
}

type ErrorPreventionPayload struct {
	TaskType     string        `json:"taskType"`
	Signature    string        `json:"signature"`
	Category     ErrorCategory `json:"category"`
	Occurrences  int           `json:"occurrences"`
	Precondition string        `json:"precondition"`
}

type ParallelizationPayload struct {
	TaskTypes    [2]string `json:"taskTypes"`
	Cooccurrence int       `json:"cooccurrence"`
	SuccessRate  float64   `json:"successRate"`
}
