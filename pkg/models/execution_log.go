package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a single node execution attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ExecutionLogEntry records one node execution attempt. Entries are
// append-only; nothing in the engine updates or deletes them.
type ExecutionLogEntry struct {
	ID           string         `json:"id"`
	InstanceID   string         `json:"instance_id"`
	NodeID       string         `json:"node_id"`
	NodeType     NodeType       `json:"node_type"`
	Outcome      Outcome        `json:"outcome"`
	StartedAt    time.Time      `json:"started_at"`
	DurationMs   int64          `json:"duration_ms"`
	ResultData   map[string]any `json:"result_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// NewLogEntry builds an entry for a finished attempt, deriving the duration
// from the start time.
func NewLogEntry(instanceID, nodeID string, nodeType NodeType, outcome Outcome, startedAt time.Time) *ExecutionLogEntry {
	return &ExecutionLogEntry{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		NodeID:     nodeID,
		NodeType:   nodeType,
		Outcome:    outcome,
		StartedAt:  startedAt,
		DurationMs: time.Since(startedAt).Milliseconds(),
	}
}
