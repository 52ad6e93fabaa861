package collaborators

import (
	"context"
	"time"
)

// Timeouts holds the per-kind deadlines applied to collaborator calls. A
// timed-out call surfaces as the node's error outcome.
type Timeouts struct {
	Delivery time.Duration
	Forms    time.Duration
	Actions  time.Duration
}

// DefaultTimeouts returns the production defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Delivery: 10 * time.Second,
		Forms:    10 * time.Second,
		Actions:  30 * time.Second,
	}
}

// WithTimeouts wraps a collaborator set so every call runs under its kind's
// deadline.
func WithTimeouts(set Set, timeouts Timeouts) Set {
	return Set{
		Delivery: &timeoutDelivery{inner: set.Delivery, timeout: timeouts.Delivery},
		Forms:    &timeoutForms{inner: set.Forms, timeout: timeouts.Forms},
		Actions:  &timeoutActions{inner: set.Actions, timeout: timeouts.Actions},
		Subjects: set.Subjects,
	}
}

type timeoutDelivery struct {
	inner   DeliveryService
	timeout time.Duration
}

func (d *timeoutDelivery) Send(ctx context.Context, idempotencyKey, target, templateRef string, variables map[string]any) (*DeliveryReceipt, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return d.inner.Send(ctx, idempotencyKey, target, templateRef, variables)
}

type timeoutForms struct {
	inner   FormService
	timeout time.Duration
}

func (f *timeoutForms) CreateInstance(ctx context.Context, idempotencyKey, subjectID, formTemplateRef string, formContext map[string]any) (*FormRef, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	return f.inner.CreateInstance(ctx, idempotencyKey, subjectID, formTemplateRef, formContext)
}

type timeoutActions struct {
	inner   ActionService
	timeout time.Duration
}

func (a *timeoutActions) Invoke(ctx context.Context, idempotencyKey, actionName string, params map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	return a.inner.Invoke(ctx, idempotencyKey, actionName, params)
}
