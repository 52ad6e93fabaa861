// Package collaborators defines the external service interfaces the engine
// calls to perform node side effects, plus decorators and reference
// implementations. The engine guarantees at-least-once invocation with a
// stable idempotency key; deduplication belongs to the implementation.
package collaborators

import (
	"context"
	"time"
)

// DeliveryReceipt is the opaque acknowledgement of a sent communication.
type DeliveryReceipt struct {
	MessageID   string    `json:"message_id"`
	Target      string    `json:"target"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// DeliveryService sends a rendered communication to a subject.
type DeliveryService interface {
	Send(ctx context.Context, idempotencyKey, target, templateRef string, variables map[string]any) (*DeliveryReceipt, error)
}

// FormRef points at a created form instance awaiting the subject.
type FormRef struct {
	FormID      string    `json:"form_id"`
	TemplateRef string    `json:"template_ref"`
	CreatedAt   time.Time `json:"created_at"`
}

// FormService creates form instances addressed to a subject.
type FormService interface {
	CreateInstance(ctx context.Context, idempotencyKey, subjectID, formTemplateRef string, formContext map[string]any) (*FormRef, error)
}

// ActionService invokes a named external side effect: update a subject's
// status, create a task, call a webhook.
type ActionService interface {
	Invoke(ctx context.Context, idempotencyKey, actionName string, params map[string]any) (map[string]any, error)
}

// Subject is one entry of the subject directory.
type Subject struct {
	ID            string         `json:"id"`
	ReferenceDate *time.Time     `json:"reference_date,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// SubjectDirectory enumerates subjects for the scheduler's date-trigger pass
// and resolves attribute snapshots at enrollment.
type SubjectDirectory interface {
	SubjectsWithReferenceDate(ctx context.Context) ([]*Subject, error)
	GetSubject(ctx context.Context, subjectID string) (*Subject, error)
}

// Set bundles the collaborators the node executor depends on.
type Set struct {
	Delivery DeliveryService
	Forms    FormService
	Actions  ActionService
	Subjects SubjectDirectory
}
