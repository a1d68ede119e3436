package domain

import "time"

// FailureSignature is a normalized error message and how often it occurred.
type FailureSignature struct {
	Signature string        `json:"signature"`
	Category  ErrorCategory `json:"category"`
	Count     int           `json:"count"`
	Example   string        `json:"example"`
}

// AgentPerformanceProfile aggregates records for one (agentType, taskType).
// It is always rebuilt from ExecutionRecords.
type AgentPerformanceProfile struct {
	AgentType         string             `json:"agentType"`
	TaskType          string             `json:"taskType"`
	Samples           int                `json:"samples"`
	SuccessRate       float64            `json:"successRate"`
	P50               time.Duration      `json:"p50"`
	P95               time.Duration      `json:"p95"`
	P99               time.Duration      `json:"p99"`
	FailureSignatures []FailureSignature `json:"failureSignatures,omitempty"`
	ComputedAt        time.Time          `json:"computedAt"`
}
