package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/eventbus"
	"github.com/vowflow/journey/pkg/events"
	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// maxStepsPerDrive bounds one synchronous drive pass. Graphs are validated
// acyclic, so any pass this long signals a defective definition.
const maxStepsPerDrive = 100

// Orchestrator owns the instance lifecycle: enrollment on trigger events,
// the synchronous drive loop, resumption after delays and cancellation.
//
// All collaborators are injected; the orchestrator never reaches for global
// state, which keeps the drive loop testable with in-memory fakes.
type Orchestrator struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	matcher     *Matcher
	executor    *Executor
	subjects    collaborators.SubjectDirectory
	publisher   eventbus.EventPublisher
	now         func() time.Time
}

func NewOrchestrator(
	logger *slog.Logger,
	store persistence.Persistence,
	matcher *Matcher,
	executor *Executor,
	subjects collaborators.SubjectDirectory,
	publisher eventbus.EventPublisher,
) *Orchestrator {
	return &Orchestrator{
		logger:      logger.With("module", "orchestrator"),
		persistence: store,
		matcher:     matcher,
		executor:    executor,
		subjects:    subjects,
		publisher:   publisher,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OnTrigger matches an event against enabled definitions and starts one
// instance per match. Matches are enrolled independently: a failure in one
// journey never blocks enrollment into another.
func (o *Orchestrator) OnTrigger(ctx context.Context, event *models.TriggerEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid trigger event: %w", err)
	}

	matched, err := o.matcher.Match(ctx, event)
	if err != nil {
		return fmt.Errorf("trigger matching failed: %w", err)
	}

	for _, def := range matched {
		if err := o.enroll(ctx, def, event); err != nil {
			o.logger.Error("Enrollment failed",
				"journey_id", def.ID, "subject_id", event.SubjectID, "error", err)
		}
	}

	return nil
}

// enroll creates a live instance for (definition, subject) and drives it. A
// live instance already occupying the slot makes the event a no-op recorded
// as a skipped execution of the trigger node.
func (o *Orchestrator) enroll(ctx context.Context, def *models.JourneyDefinition, event *models.TriggerEvent) error {
	triggerNodeID, triggerNode := def.TriggerNode()
	if triggerNode == nil {
		return fmt.Errorf("journey %s: %w", def.ID, models.ErrNoTriggerNode)
	}

	existing, err := o.persistence.Instances().FindLive(ctx, def.ID, event.SubjectID)
	if err != nil && !persistence.IsInstanceNotFound(err) {
		return err
	}

	if existing != nil {
		return o.recordDuplicateTrigger(ctx, existing, triggerNodeID)
	}

	instance := models.NewJourneyInstance(def.ID, triggerNodeID, event, o.subjectAttributes(ctx, event.SubjectID))

	if err := o.persistence.Instances().CreateLive(ctx, instance); err != nil {
		// Lost the enrollment race to a concurrent event for the same pair.
		if persistence.IsInstanceExists(err) {
			live, findErr := o.persistence.Instances().FindLive(ctx, def.ID, event.SubjectID)
			if findErr != nil {
				return findErr
			}

			return o.recordDuplicateTrigger(ctx, live, triggerNodeID)
		}

		return err
	}

	o.publish(ctx, &events.InstanceCreated{
		BaseEvent: events.NewBaseEvent(events.InstanceCreatedEvent, def.ID, instance.ID),
		SubjectID: instance.SubjectID,
	})

	return o.drive(ctx, def, instance)
}

func (o *Orchestrator) recordDuplicateTrigger(ctx context.Context, instance *models.JourneyInstance, triggerNodeID string) error {
	o.logger.Info("Subject already enrolled, skipping trigger",
		"journey_id", instance.JourneyID, "subject_id", instance.SubjectID, "instance_id", instance.ID)

	entry := models.NewLogEntry(instance.ID, triggerNodeID, models.NodeTypeTrigger, models.OutcomeSkipped, o.now())

	return o.persistence.ExecutionLog().Append(ctx, entry)
}

func (o *Orchestrator) subjectAttributes(ctx context.Context, subjectID string) map[string]any {
	if o.subjects == nil {
		return map[string]any{}
	}

	subject, err := o.subjects.GetSubject(ctx, subjectID)
	if err != nil || subject == nil {
		return map[string]any{}
	}

	return subject.Attributes
}

// drive executes nodes synchronously from the instance's current node until
// the path blocks on a delay, completes, or fails. Every step is committed
// optimistically before its log entry is appended and the next node runs, so
// a concurrent cancel stops the pass at the node boundary: the refused step
// is logged as skipped and nothing downstream of it ever executes.
func (o *Orchestrator) drive(ctx context.Context, def *models.JourneyDefinition, instance *models.JourneyInstance) error {
	if instance.CurrentNodeID == nil {
		return o.fail(ctx, instance, "", "", o.now(), ErrMissingNode)
	}

	current := *instance.CurrentNodeID

	for step := 0; ; step++ {
		node, ok := def.Nodes[current]
		if !ok {
			return o.fail(ctx, instance, current, "", o.now(), fmt.Errorf("%w: %q", ErrMissingNode, current))
		}

		if step >= maxStepsPerDrive {
			return o.fail(ctx, instance, current, node.Type, o.now(), ErrStepLimitExceeded)
		}

		startedAt := o.now()

		result, err := o.executor.ExecuteNode(ctx, instance, current, node)
		if err != nil {
			return o.fail(ctx, instance, current, node.Type, startedAt, newNodeError(instance.ID, current, err))
		}

		if result.Result != nil {
			instance.StepMemory[current] = result.Result
		}

		if result.Blocked != nil {
			return o.park(ctx, instance, current, node, result, startedAt)
		}

		if len(result.Successors) == 0 {
			return o.complete(ctx, instance, current, node, result, startedAt)
		}

		next := result.Successors[0]
		instance.CurrentNodeID = &next
		instance.UpdatedAt = o.now()

		committed, err := o.commit(ctx, instance, current, node.Type, startedAt)
		if err != nil || !committed {
			return err
		}

		entry := models.NewLogEntry(instance.ID, current, node.Type, models.OutcomeSuccess, startedAt)
		entry.ResultData = result.Result

		if err := o.persistence.ExecutionLog().Append(ctx, entry); err != nil {
			return err
		}

		current = next
	}
}

// park commits the instance as waiting on a delay node and persists its
// wakeup record.
func (o *Orchestrator) park(ctx context.Context, instance *models.JourneyInstance, nodeID string, node *models.Node, result *ExecResult, startedAt time.Time) error {
	instance.Status = models.InstanceStatusWaiting
	instance.CurrentNodeID = &nodeID
	instance.UpdatedAt = o.now()

	committed, err := o.commit(ctx, instance, nodeID, node.Type, startedAt)
	if err != nil || !committed {
		return err
	}

	entry := models.NewLogEntry(instance.ID, nodeID, node.Type, models.OutcomeSuccess, startedAt)
	entry.ResultData = result.Result

	if err := o.persistence.ExecutionLog().Append(ctx, entry); err != nil {
		return err
	}

	if err := o.persistence.ScheduledWork().Save(ctx, result.Blocked); err != nil {
		return fmt.Errorf("failed to save scheduled work: %w", err)
	}

	o.publish(ctx, &events.InstanceWaiting{
		BaseEvent: events.NewBaseEvent(events.InstanceWaitingEvent, instance.JourneyID, instance.ID),
		NodeID:    nodeID,
		DueAt:     result.Blocked.DueAt,
	})

	return nil
}

// complete commits the instance as finished after its last node.
func (o *Orchestrator) complete(ctx context.Context, instance *models.JourneyInstance, nodeID string, node *models.Node, result *ExecResult, startedAt time.Time) error {
	now := o.now()
	instance.Status = models.InstanceStatusCompleted
	instance.CurrentNodeID = nil
	instance.CompletedAt = &now
	instance.UpdatedAt = now

	committed, err := o.commit(ctx, instance, nodeID, node.Type, startedAt)
	if err != nil || !committed {
		return err
	}

	entry := models.NewLogEntry(instance.ID, nodeID, node.Type, models.OutcomeSuccess, startedAt)
	entry.ResultData = result.Result

	if err := o.persistence.ExecutionLog().Append(ctx, entry); err != nil {
		return err
	}

	o.publish(ctx, &events.InstanceCompleted{
		BaseEvent: events.NewBaseEvent(events.InstanceCompletedEvent, instance.JourneyID, instance.ID),
		Duration:  now.Sub(instance.CreatedAt),
	})

	o.logger.Info("Instance completed",
		"journey_id", instance.JourneyID, "instance_id", instance.ID)

	return nil
}

// fail commits the instance as failed and records the failing node. Failures
// are terminal for the instance but never propagate as handler errors, so a
// defective definition cannot wedge the trigger consumer.
func (o *Orchestrator) fail(ctx context.Context, instance *models.JourneyInstance, nodeID string, nodeType models.NodeType, startedAt time.Time, cause error) error {
	o.logger.Error("Instance failed",
		"journey_id", instance.JourneyID, "instance_id", instance.ID, "node_id", nodeID, "error", cause)

	instance.Status = models.InstanceStatusFailed
	instance.UpdatedAt = o.now()

	committed, err := o.commit(ctx, instance, nodeID, nodeType, startedAt)
	if err != nil || !committed {
		return err
	}

	entry := models.NewLogEntry(instance.ID, nodeID, nodeType, models.OutcomeFailed, startedAt)
	entry.ErrorMessage = cause.Error()

	if err := o.persistence.ExecutionLog().Append(ctx, entry); err != nil {
		return err
	}

	o.publish(ctx, &events.InstanceFailed{
		BaseEvent: events.NewBaseEvent(events.InstanceFailedEvent, instance.JourneyID, instance.ID),
		NodeID:    nodeID,
		Error:     cause.Error(),
	})

	return nil
}

// commit performs the optimistic write of a step advance or a terminal or
// waiting state. A version conflict means another writer got there first;
// when that writer cancelled the instance, the refused step is recorded as
// skipped. Either way the pass stops without committing, reported via the
// false return.
func (o *Orchestrator) commit(ctx context.Context, instance *models.JourneyInstance, nodeID string, nodeType models.NodeType, startedAt time.Time) (bool, error) {
	err := o.persistence.Instances().Update(ctx, instance)
	if err == nil {
		return true, nil
	}

	if !persistence.IsVersionConflict(err) {
		return false, err
	}

	stored, getErr := o.persistence.Instances().GetByID(ctx, instance.ID)
	if getErr != nil {
		return false, getErr
	}

	if stored.Status.Terminal() {
		o.logger.Info("Dropping step commit, instance reached terminal state concurrently",
			"instance_id", instance.ID, "node_id", nodeID, "status", stored.Status)

		if nodeID != "" {
			entry := models.NewLogEntry(instance.ID, nodeID, nodeType, models.OutcomeSkipped, startedAt)

			return false, o.persistence.ExecutionLog().Append(ctx, entry)
		}

		return false, nil
	}

	o.logger.Warn("Version conflict on instance commit, abandoning pass",
		"instance_id", instance.ID, "node_id", nodeID)

	return false, nil
}

// Resume wakes an instance parked on a delay node. The delay node is not
// re-executed and gets no second log entry; control flows directly to its
// successors.
func (o *Orchestrator) Resume(ctx context.Context, work *models.ScheduledWork) error {
	instance, err := o.persistence.Instances().GetByID(ctx, work.InstanceID)
	if err != nil {
		if persistence.IsInstanceNotFound(err) {
			o.logger.Warn("Scheduled work points at missing instance", "instance_id", work.InstanceID)

			return nil
		}

		return err
	}

	if instance.Status != models.InstanceStatusWaiting {
		o.logger.Info("Ignoring wakeup for non-waiting instance",
			"instance_id", instance.ID, "status", instance.Status)

		return nil
	}

	if work.NodeID == nil || instance.CurrentNodeID == nil || *work.NodeID != *instance.CurrentNodeID {
		o.logger.Warn("Wakeup does not match instance position, ignoring",
			"instance_id", instance.ID, "work_id", work.ID)

		return nil
	}

	def, err := o.persistence.Definitions().GetByID(ctx, instance.JourneyID)
	if err != nil {
		return err
	}

	delayNode, ok := def.Nodes[*work.NodeID]
	if !ok {
		return o.fail(ctx, instance, *work.NodeID, "", o.now(), fmt.Errorf("%w: %q", ErrMissingNode, *work.NodeID))
	}

	if len(delayNode.Successors) == 0 {
		now := o.now()
		instance.Status = models.InstanceStatusCompleted
		instance.CurrentNodeID = nil
		instance.CompletedAt = &now
		instance.UpdatedAt = now

		if err := o.persistence.Instances().Update(ctx, instance); err != nil {
			if persistence.IsVersionConflict(err) {
				return nil
			}

			return err
		}

		o.publish(ctx, &events.InstanceCompleted{
			BaseEvent: events.NewBaseEvent(events.InstanceCompletedEvent, instance.JourneyID, instance.ID),
			Duration:  now.Sub(instance.CreatedAt),
		})

		return nil
	}

	next := delayNode.Successors[0]
	instance.Status = models.InstanceStatusActive
	instance.CurrentNodeID = &next
	instance.UpdatedAt = o.now()

	if err := o.persistence.Instances().Update(ctx, instance); err != nil {
		// A concurrent cancel won the slot; the claimed wakeup is spent.
		if persistence.IsVersionConflict(err) {
			return nil
		}

		return err
	}

	return o.drive(ctx, def, instance)
}

// Cancel terminates a live instance and clears its pending wakeups.
func (o *Orchestrator) Cancel(ctx context.Context, instanceID string) error {
	instance, err := o.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.Status.Terminal() {
		return fmt.Errorf("%w: instance %s is %s", ErrInstanceNotCancellable, instanceID, instance.Status)
	}

	instance.Status = models.InstanceStatusCancelled
	instance.CurrentNodeID = nil
	instance.UpdatedAt = o.now()

	if err := o.persistence.Instances().Update(ctx, instance); err != nil {
		if persistence.IsVersionConflict(err) {
			return fmt.Errorf("instance %s changed concurrently: %w", instanceID, err)
		}

		return err
	}

	if err := o.persistence.ScheduledWork().DeleteByInstance(ctx, instanceID); err != nil {
		return fmt.Errorf("failed to clear scheduled work: %w", err)
	}

	o.publish(ctx, &events.InstanceCancelled{
		BaseEvent: events.NewBaseEvent(events.InstanceCancelledEvent, instance.JourneyID, instance.ID),
	})

	o.logger.Info("Instance cancelled",
		"journey_id", instance.JourneyID, "instance_id", instance.ID)

	return nil
}

// publish emits a lifecycle event; publish failures are logged, never
// propagated, so observability problems cannot fail instance work.
func (o *Orchestrator) publish(ctx context.Context, event eventbus.Event) {
	if o.publisher == nil {
		return
	}

	if err := o.publisher.Publish(ctx, string(event.GetType()), event); err != nil {
		o.logger.Error("Failed to publish lifecycle event", "event_type", event.GetType(), "error", err)
	}
}
