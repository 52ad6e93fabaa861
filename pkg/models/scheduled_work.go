package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkKind classifies a scheduled-work record.
type WorkKind string

// WorkKindResumeInstance wakes a waiting instance blocked on a delay node.
const WorkKindResumeInstance WorkKind = "resume-instance"

// ScheduledWork is a durable pointer to future re-activation. Rows are
// claimed atomically by the scheduler's resume pass, so a wakeup fires at
// most once.
type ScheduledWork struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	NodeID     *string   `json:"node_id,omitempty"`
	Kind       WorkKind  `json:"kind"`
	DueAt      time.Time `json:"due_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewResumeWork creates the wakeup record a delay node parks an instance on.
func NewResumeWork(instanceID, nodeID string, dueAt time.Time) *ScheduledWork {
	id := nodeID

	return &ScheduledWork{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		NodeID:     &id,
		Kind:       WorkKindResumeInstance,
		DueAt:      dueAt,
		CreatedAt:  time.Now().UTC(),
	}
}
