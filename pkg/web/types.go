// Package web provides HTTP handlers and request types for the journey API.
package web

import (
	"time"

	"github.com/vowflow/journey/pkg/models"
)

// CreateJourneyRequest is the request body for creating or replacing a
// journey definition. The graph is validated as a whole before it is saved.
type CreateJourneyRequest struct {
	ID          string                  `json:"id,omitempty"`
	Name        string                  `json:"name"         validate:"required,min=3"`
	OwnerID     string                  `json:"owner_id"     validate:"required"`
	TriggerType models.TriggerType      `json:"trigger_type" validate:"required"`
	Enabled     bool                    `json:"enabled"`
	Nodes       map[string]*models.Node `json:"nodes"        validate:"required,min=1"`
}

// IngestEventRequest is the request body for the trigger ingress endpoint.
type IngestEventRequest struct {
	EventID       string             `json:"event_id,omitempty"`
	SubjectID     string             `json:"subject_id"   validate:"required"`
	TriggerType   models.TriggerType `json:"trigger_type" validate:"required"`
	Payload       map[string]any     `json:"payload,omitempty"`
	ReferenceDate *time.Time         `json:"reference_date,omitempty"`
}

// IngestEventResponse acknowledges acceptance; processing is asynchronous.
type IngestEventResponse struct {
	EventID   string `json:"event_id"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
