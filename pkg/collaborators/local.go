package collaborators

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Local implementations used in development, single-process deployments and
// tests. They log the side effect instead of performing it.

// LogDelivery records sends to the logger and returns synthetic receipts.
type LogDelivery struct {
	logger *slog.Logger
}

func NewLogDelivery(logger *slog.Logger) *LogDelivery {
	return &LogDelivery{logger: logger.With("module", "log_delivery")}
}

func (d *LogDelivery) Send(_ context.Context, idempotencyKey, target, templateRef string, variables map[string]any) (*DeliveryReceipt, error) {
	d.logger.Info("Delivering message",
		"idempotency_key", idempotencyKey,
		"target", target,
		"template", templateRef,
		"variables", variables)

	return &DeliveryReceipt{
		MessageID:   uuid.New().String(),
		Target:      target,
		DeliveredAt: time.Now().UTC(),
	}, nil
}

// LogForms records form creation to the logger.
type LogForms struct {
	logger *slog.Logger
}

func NewLogForms(logger *slog.Logger) *LogForms {
	return &LogForms{logger: logger.With("module", "log_forms")}
}

func (f *LogForms) CreateInstance(_ context.Context, idempotencyKey, subjectID, formTemplateRef string, _ map[string]any) (*FormRef, error) {
	f.logger.Info("Creating form instance",
		"idempotency_key", idempotencyKey,
		"subject_id", subjectID,
		"template", formTemplateRef)

	return &FormRef{
		FormID:      uuid.New().String(),
		TemplateRef: formTemplateRef,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// LogActions records invocations to the logger.
type LogActions struct {
	logger *slog.Logger
}

func NewLogActions(logger *slog.Logger) *LogActions {
	return &LogActions{logger: logger.With("module", "log_actions")}
}

func (a *LogActions) Invoke(_ context.Context, idempotencyKey, actionName string, params map[string]any) (map[string]any, error) {
	a.logger.Info("Invoking action",
		"idempotency_key", idempotencyKey,
		"action", actionName,
		"params", params)

	return map[string]any{"action": actionName, "invoked": true}, nil
}

// StaticSubjectDirectory is an in-memory subject directory.
type StaticSubjectDirectory struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
}

func NewStaticSubjectDirectory(subjects ...*Subject) *StaticSubjectDirectory {
	dir := &StaticSubjectDirectory{subjects: make(map[string]*Subject)}

	for _, subject := range subjects {
		dir.subjects[subject.ID] = subject
	}

	return dir
}

// Put adds or replaces a subject.
func (d *StaticSubjectDirectory) Put(subject *Subject) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.subjects[subject.ID] = subject
}

func (d *StaticSubjectDirectory) SubjectsWithReferenceDate(_ context.Context) ([]*Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	subjects := []*Subject{}

	for _, subject := range d.subjects {
		if subject.ReferenceDate != nil {
			subjects = append(subjects, subject)
		}
	}

	return subjects, nil
}

func (d *StaticSubjectDirectory) GetSubject(_ context.Context, subjectID string) (*Subject, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if subject, ok := d.subjects[subjectID]; ok {
		return subject, nil
	}

	return nil, nil
}

// LocalSet builds a fully local collaborator set around a subject directory.
func LocalSet(logger *slog.Logger, subjects *StaticSubjectDirectory) Set {
	return Set{
		Delivery: NewLogDelivery(logger),
		Forms:    NewLogForms(logger),
		Actions:  NewLogActions(logger),
		Subjects: subjects,
	}
}
