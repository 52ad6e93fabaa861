package models

import (
	"time"

	"github.com/google/uuid"
)

// InstanceStatus is the lifecycle state of a journey instance.
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusWaiting   InstanceStatus = "waiting"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether the status is a permanent end state.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceStatusCompleted, InstanceStatusFailed, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// Live reports whether the status still occupies the per-(journey, subject)
// uniqueness slot.
func (s InstanceStatus) Live() bool {
	return s == InstanceStatusActive || s == InstanceStatusWaiting
}

// JourneyInstance is one running (or finished) execution of a journey for one
// subject. At most one live instance may exist per (JourneyID, SubjectID);
// the instance store enforces that with a conditional insert.
//
// Version backs optimistic-concurrency writes: every update must carry the
// version it read and bumps it by one, so concurrent drive loops for the same
// instance cannot both commit.
type JourneyInstance struct {
	ID            string         `json:"id"`
	JourneyID     string         `json:"journey_id"`
	SubjectID     string         `json:"subject_id"`
	Status        InstanceStatus `json:"status"`
	CurrentNodeID *string        `json:"current_node_id,omitempty"`
	StepMemory    map[string]any `json:"step_memory"`
	Context       map[string]any `json:"context"`
	ReferenceDate *time.Time     `json:"reference_date,omitempty"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewJourneyInstance creates an active instance positioned at the trigger
// node, with the context snapshot captured once and never re-read.
func NewJourneyInstance(journeyID, triggerNodeID string, event *TriggerEvent, subjectAttrs map[string]any) *JourneyInstance {
	now := time.Now().UTC()

	context := map[string]any{
		"event":   event.Payload,
		"subject": subjectAttrs,
	}

	nodeID := triggerNodeID

	return &JourneyInstance{
		ID:            uuid.New().String(),
		JourneyID:     journeyID,
		SubjectID:     event.SubjectID,
		Status:        InstanceStatusActive,
		CurrentNodeID: &nodeID,
		StepMemory:    map[string]any{},
		Context:       context,
		ReferenceDate: event.ReferenceDate,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IdempotencyKey returns the stable key passed to collaborators for a node
// execution, letting them deduplicate re-sent side effects.
func (i *JourneyInstance) IdempotencyKey(nodeID string) string {
	return i.ID + ":" + nodeID
}
