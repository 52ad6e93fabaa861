package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/template"
)

// ExecResult is the outcome of one node execution.
//
// Exactly one of two shapes comes back on success: Successors carries the
// node ids control flows to next, or Blocked carries the wakeup record a
// delay node parked the instance on.
type ExecResult struct {
	Successors []string
	Blocked    *models.ScheduledWork
	Result     map[string]any
}

// Executor runs a single node against an instance. It holds no instance
// state; the orchestrator owns persistence and the drive loop.
type Executor struct {
	logger        *slog.Logger
	collaborators collaborators.Set
	now           func() time.Time
}

func NewExecutor(logger *slog.Logger, set collaborators.Set) *Executor {
	return &Executor{
		logger:        logger.With("module", "node_executor"),
		collaborators: set,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteNode dispatches on the node type. The switch is exhaustive over the
// closed set; a type outside it is an executor bug surfaced as
// ErrUnknownNodeType rather than a silently skipped step.
func (e *Executor) ExecuteNode(ctx context.Context, instance *models.JourneyInstance, nodeID string, node *models.Node) (*ExecResult, error) {
	switch node.Type {
	case models.NodeTypeTrigger:
		// Entry marker only; the enrollment already happened.
		return &ExecResult{Successors: node.Successors}, nil
	case models.NodeTypeMessage:
		return e.executeMessage(ctx, instance, nodeID, node)
	case models.NodeTypeFormRequest:
		return e.executeFormRequest(ctx, instance, nodeID, node)
	case models.NodeTypeDelay:
		return e.executeDelay(instance, nodeID, node)
	case models.NodeTypeCondition:
		return e.executeCondition(instance, node)
	case models.NodeTypeAction:
		return e.executeAction(ctx, instance, nodeID, node)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, node.Type)
	}
}

func (e *Executor) executeMessage(ctx context.Context, instance *models.JourneyInstance, nodeID string, node *models.Node) (*ExecResult, error) {
	templateRef, _ := node.ConfigString("template")

	target, err := e.resolveTarget(instance, node)
	if err != nil {
		return nil, err
	}

	variables, err := e.renderedVariables(instance, node, "variables")
	if err != nil {
		return nil, err
	}

	receipt, err := e.collaborators.Delivery.Send(ctx, instance.IdempotencyKey(nodeID), target, templateRef, variables)
	if err != nil {
		return nil, fmt.Errorf("delivery failed: %w", err)
	}

	e.logger.Debug("Message delivered",
		"instance_id", instance.ID, "node_id", nodeID, "message_id", receipt.MessageID)

	return &ExecResult{
		Successors: node.Successors,
		Result: map[string]any{
			"message_id":   receipt.MessageID,
			"target":       receipt.Target,
			"delivered_at": receipt.DeliveredAt.Format(time.RFC3339),
		},
	}, nil
}

func (e *Executor) executeFormRequest(ctx context.Context, instance *models.JourneyInstance, nodeID string, node *models.Node) (*ExecResult, error) {
	formTemplate, _ := node.ConfigString("formTemplate")

	formContext, err := e.renderedVariables(instance, node, "formContext")
	if err != nil {
		return nil, err
	}

	ref, err := e.collaborators.Forms.CreateInstance(ctx, instance.IdempotencyKey(nodeID), instance.SubjectID, formTemplate, formContext)
	if err != nil {
		return nil, fmt.Errorf("form creation failed: %w", err)
	}

	return &ExecResult{
		Successors: node.Successors,
		Result: map[string]any{
			"form_id":      ref.FormID,
			"template_ref": ref.TemplateRef,
			"created_at":   ref.CreatedAt.Format(time.RFC3339),
		},
	}, nil
}

func (e *Executor) executeDelay(instance *models.JourneyInstance, nodeID string, node *models.Node) (*ExecResult, error) {
	dueAt, err := node.DelayDueAt(e.now())
	if err != nil {
		return nil, err
	}

	work := models.NewResumeWork(instance.ID, nodeID, dueAt)

	return &ExecResult{
		Blocked: work,
		Result:  map[string]any{"due_at": dueAt.Format(time.RFC3339)},
	}, nil
}

func (e *Executor) executeCondition(instance *models.JourneyInstance, node *models.Node) (*ExecResult, error) {
	predicate, err := models.ParsePredicate(node.Config)
	if err != nil {
		return nil, err
	}

	outcome, err := predicate.Evaluate(instance, e.now())
	if err != nil {
		return nil, err
	}

	// Exactly one branch list applies. An empty list ends the journey for
	// that outcome, which is a valid graph shape.
	return &ExecResult{
		Successors: node.BranchSuccessors(outcome),
		Result:     map[string]any{"outcome": outcome},
	}, nil
}

func (e *Executor) executeAction(ctx context.Context, instance *models.JourneyInstance, nodeID string, node *models.Node) (*ExecResult, error) {
	actionName, _ := node.ConfigString("actionName")

	params, err := e.renderedVariables(instance, node, "params")
	if err != nil {
		return nil, err
	}

	result, err := e.collaborators.Actions.Invoke(ctx, instance.IdempotencyKey(nodeID), actionName, params)
	if err != nil {
		return nil, fmt.Errorf("action %q failed: %w", actionName, err)
	}

	return &ExecResult{Successors: node.Successors, Result: result}, nil
}

// resolveTarget renders the configured target, falling back to the subject's
// email attribute from the enrollment snapshot, then to the subject id.
func (e *Executor) resolveTarget(instance *models.JourneyInstance, node *models.Node) (string, error) {
	if raw, ok := node.ConfigString("target"); ok && raw != "" {
		rendered, err := template.RenderWithInstance(raw, instance)
		if err != nil {
			return "", fmt.Errorf("failed to render target: %w", err)
		}

		return fmt.Sprintf("%v", rendered), nil
	}

	if subject, ok := instance.Context["subject"].(map[string]any); ok {
		if email, ok := subject["email"].(string); ok && email != "" {
			return email, nil
		}
	}

	return instance.SubjectID, nil
}

func (e *Executor) renderedVariables(instance *models.JourneyInstance, node *models.Node, key string) (map[string]any, error) {
	raw, ok := node.Config[key].(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}

	return template.RenderVariables(raw, instance)
}
