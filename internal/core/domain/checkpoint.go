package domain

import (
	"encoding/json"
	"maps"
	"time"
)

type CheckpointMetadata struct {
	Description string `json:"description"`
	Automatic   bool   `json:"automatic"`
	TriggeredBy string `json:"triggeredBy"`
}

// Checkpoint is an immutable serialized snapshot of workflow state.
type Checkpoint struct {
	ID              string             `json:"id"`
	Timestamp       time.Time          `json:"timestamp"`
	SerializedState json.RawMessage    `json:"serializedState"`
	AgentStates     map[string]string  `json:"agentStates,omitempty"`
	Metadata        CheckpointMetadata `json:"metadata"`
}

// Decode deserializes the snapshot into v, producing a fresh structure.
func (c *Checkpoint) Decode(v any) error {
	return json.Unmarshal(c.SerializedState, v)
}

func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.SerializedState = append(json.RawMessage(nil), c.SerializedState...)
	cp.AgentStates = maps.Clone(c.AgentStates)
	return &cp
}
