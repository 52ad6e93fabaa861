package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TriggerEvent is the transient input that may start journey instances. It is
// not persisted beyond the execution log of whatever it starts.
type TriggerEvent struct {
	EventID       string         `json:"event_id"     validate:"required"`
	SubjectID     string         `json:"subject_id"   validate:"required"`
	TriggerType   TriggerType    `json:"trigger_type" validate:"required"`
	Payload       map[string]any `json:"payload,omitempty"`
	ReferenceDate *time.Time     `json:"reference_date,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

var (
	ErrMissingSubject  = errors.New("trigger event has no subject id")
	ErrMissingEventID  = errors.New("trigger event has no event id")
	ErrBadTriggerType  = errors.New("trigger event has unknown trigger type")
	ErrNoReferenceDate = errors.New("date-based trigger event has no reference date")
)

// NewTriggerEvent builds an event with a fresh id and the current time.
func NewTriggerEvent(subjectID string, triggerType TriggerType, payload map[string]any) *TriggerEvent {
	return &TriggerEvent{
		EventID:     uuid.New().String(),
		SubjectID:   subjectID,
		TriggerType: triggerType,
		Payload:     payload,
		OccurredAt:  time.Now().UTC(),
	}
}

// Validate checks the event is well formed enough to be matched.
func (e *TriggerEvent) Validate() error {
	if e.EventID == "" {
		return ErrMissingEventID
	}

	if e.SubjectID == "" {
		return ErrMissingSubject
	}

	if !KnownTriggerType(e.TriggerType) {
		return ErrBadTriggerType
	}

	if e.TriggerType == TriggerTypeDateBased && e.ReferenceDate == nil {
		return ErrNoReferenceDate
	}

	return nil
}

// FormType returns the submitted form's type for form-submitted events, empty
// when absent.
func (e *TriggerEvent) FormType() string {
	if e.Payload == nil {
		return ""
	}

	if s, ok := e.Payload["formType"].(string); ok {
		return s
	}

	return ""
}
