// Package events defines the event payloads exchanged over the engine's
// message bus: inbound trigger events and outbound instance lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/vowflow/journey/pkg/models"
)

// Bus topics.
const (
	// TriggerTopic carries inbound business events toward the orchestrator.
	TriggerTopic = "journey.triggers"
	// InstanceTopic carries instance lifecycle notifications outward.
	InstanceTopic = "journey.instances"
)

// Message metadata keys.
const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

type EventType string

const (
	TriggerReceivedEvent EventType = "journey.trigger.received"

	InstanceCreatedEvent   EventType = "journey.instance.created"
	InstanceWaitingEvent   EventType = "journey.instance.waiting"
	InstanceCompletedEvent EventType = "journey.instance.completed"
	InstanceFailedEvent    EventType = "journey.instance.failed"
	InstanceCancelledEvent EventType = "journey.instance.cancelled"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	JourneyID  string         `json:"journey_id,omitempty"`
	InstanceID string         `json:"instance_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent builds the shared envelope for an event type.
func NewBaseEvent(eventType EventType, journeyID, instanceID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		JourneyID:  journeyID,
		InstanceID: instanceID,
	}
}

// TriggerReceived wraps a business trigger event for bus transport.
type TriggerReceived struct {
	BaseEvent

	Event *models.TriggerEvent `json:"event"`
}

func (e TriggerReceived) GetType() EventType {
	return TriggerReceivedEvent
}

// NewTriggerReceived wraps a trigger event for publishing.
func NewTriggerReceived(event *models.TriggerEvent) *TriggerReceived {
	return &TriggerReceived{
		BaseEvent: NewBaseEvent(TriggerReceivedEvent, "", ""),
		Event:     event,
	}
}

// InstanceCreated is published when a trigger event enrolls a subject.
type InstanceCreated struct {
	BaseEvent

	SubjectID string `json:"subject_id"`
}

func (e InstanceCreated) GetType() EventType {
	return InstanceCreatedEvent
}

// InstanceWaiting is published when an instance parks on a delay node.
type InstanceWaiting struct {
	BaseEvent

	NodeID string    `json:"node_id"`
	DueAt  time.Time `json:"due_at"`
}

func (e InstanceWaiting) GetType() EventType {
	return InstanceWaitingEvent
}

// InstanceCompleted is published when an instance runs off the end of its
// graph.
type InstanceCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

// InstanceFailed is published when a node execution fails terminally.
type InstanceFailed struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

func (e InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}

// InstanceCancelled is published on explicit cancellation.
type InstanceCancelled struct {
	BaseEvent
}

func (e InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}
