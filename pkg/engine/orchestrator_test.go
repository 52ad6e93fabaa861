package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
	"github.com/vowflow/journey/pkg/persistence/file"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	store        persistence.Persistence
	orchestrator *Orchestrator
	subjects     *collaborators.StaticSubjectDirectory
}

func newTestEngine(t *testing.T, set collaborators.Set) *testEngine {
	t.Helper()

	logger := testLogger()
	store := file.NewPersistence(t.TempDir())
	subjects := collaborators.NewStaticSubjectDirectory(&collaborators.Subject{
		ID:         "subject-1",
		Attributes: map[string]any{"email": "pat@example.com", "name": "Pat"},
	})

	if set.Delivery == nil {
		set = collaborators.LocalSet(logger, subjects)
	}

	matcher := NewMatcher(logger, store.Definitions())
	executor := NewExecutor(logger, set)
	orchestrator := NewOrchestrator(logger, store, matcher, executor, subjects, nil)

	return &testEngine{store: store, orchestrator: orchestrator, subjects: subjects}
}

func saveDefinition(t *testing.T, store persistence.Persistence, def *models.JourneyDefinition) {
	t.Helper()
	require.NoError(t, store.Definitions().Save(context.Background(), def))
}

func welcomeDefinition() *models.JourneyDefinition {
	return &models.JourneyDefinition{
		ID:          "welcome",
		OwnerID:     "owner-1",
		Name:        "Welcome Flow",
		TriggerType: models.TriggerTypeSubjectAdded,
		Enabled:     true,
		Nodes: map[string]*models.Node{
			"start": {Type: models.NodeTypeTrigger, Successors: []string{"hello"}},
			"hello": {
				Type:   models.NodeTypeMessage,
				Config: map[string]any{"template": "welcome-email", "target": "{{ .subject.email }}"},
			},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func subjectAddedEvent(subjectID string) *models.TriggerEvent {
	return models.NewTriggerEvent(subjectID, models.TriggerTypeSubjectAdded, map[string]any{"source": "import"})
}

func TestOrchestrator_TriggerToCompletion(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	saveDefinition(t, te.store, welcomeDefinition())

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instance, err := te.store.Instances().FindLive(ctx, "welcome", "subject-1")
	require.Error(t, err)
	assert.True(t, persistence.IsInstanceNotFound(err))
	assert.Nil(t, instance)

	instances, err := te.store.Instances().ByJourney(ctx, "welcome")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	done := instances[0]
	assert.Equal(t, models.InstanceStatusCompleted, done.Status)
	assert.Nil(t, done.CurrentNodeID)
	require.NotNil(t, done.CompletedAt)

	receipt, ok := done.StepMemory["hello"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pat@example.com", receipt["target"])

	entries, err := te.store.ExecutionLog().ByInstance(ctx, done.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "start", entries[0].NodeID)
	assert.Equal(t, models.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, "hello", entries[1].NodeID)
	assert.Equal(t, models.OutcomeSuccess, entries[1].Outcome)
}

func TestOrchestrator_DuplicateTriggerSuppressed(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	def := welcomeDefinition()
	// Park the flow so the first instance stays live.
	def.Nodes["hello"].Successors = []string{"wait"}
	def.Nodes["wait"] = &models.Node{
		Type:   models.NodeTypeDelay,
		Config: map[string]any{"unit": "days", "amount": float64(3)},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))
	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instances, err := te.store.Instances().ByJourney(ctx, "welcome")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	entries, err := te.store.ExecutionLog().ByInstance(ctx, instances[0].ID)
	require.NoError(t, err)

	var skipped int

	for _, entry := range entries {
		if entry.Outcome == models.OutcomeSkipped {
			skipped++

			assert.Equal(t, "start", entry.NodeID)
		}
	}

	assert.Equal(t, 1, skipped)
}

func TestOrchestrator_DelayParksAndResumes(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	def := welcomeDefinition()
	def.Nodes["hello"].Successors = []string{"wait"}
	def.Nodes["wait"] = &models.Node{
		Type:       models.NodeTypeDelay,
		Config:     map[string]any{"unit": "hours", "amount": float64(2)},
		Successors: []string{"followup"},
	}
	def.Nodes["followup"] = &models.Node{
		Type:   models.NodeTypeMessage,
		Config: map[string]any{"template": "followup-email"},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instance, err := te.store.Instances().FindLive(ctx, "welcome", "subject-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusWaiting, instance.Status)
	require.NotNil(t, instance.CurrentNodeID)
	assert.Equal(t, "wait", *instance.CurrentNodeID)

	due, err := te.store.ScheduledWork().ClaimDue(ctx, models.WorkKindResumeInstance, time.Now().UTC().Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, instance.ID, due[0].InstanceID)

	require.NoError(t, te.orchestrator.Resume(ctx, due[0]))

	resumed, err := te.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, resumed.Status)

	entries, err := te.store.ExecutionLog().ByInstance(ctx, instance.ID)
	require.NoError(t, err)

	// The delay node is logged once at parking time and never again on
	// resume.
	var delayEntries int

	for _, entry := range entries {
		if entry.NodeID == "wait" {
			delayEntries++
		}
	}

	assert.Equal(t, 1, delayEntries)
	assert.Equal(t, "followup", entries[len(entries)-1].NodeID)
}

func TestOrchestrator_ConditionSelectsOneBranch(t *testing.T) {
	for _, tc := range []struct {
		name     string
		plan     string
		wantNode string
	}{
		{name: "true branch", plan: "premium", wantNode: "vip"},
		{name: "false branch", plan: "basic", wantNode: "standard"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			te := newTestEngine(t, collaborators.Set{})
			ctx := context.Background()

			def := &models.JourneyDefinition{
				ID:          "branching",
				OwnerID:     "owner-1",
				Name:        "Branching Flow",
				TriggerType: models.TriggerTypeSubjectAdded,
				Enabled:     true,
				Nodes: map[string]*models.Node{
					"start": {Type: models.NodeTypeTrigger, Successors: []string{"split"}},
					"split": {
						Type: models.NodeTypeCondition,
						Config: map[string]any{
							"predicate": map[string]any{
								"kind":     "subject-attribute",
								"field":    "plan",
								"operator": "eq",
								"value":    "premium",
							},
							"onTrue":  []any{"vip"},
							"onFalse": []any{"standard"},
						},
					},
					"vip":      {Type: models.NodeTypeMessage, Config: map[string]any{"template": "vip-email"}},
					"standard": {Type: models.NodeTypeMessage, Config: map[string]any{"template": "standard-email"}},
				},
			}
			saveDefinition(t, te.store, def)

			te.subjects.Put(&collaborators.Subject{
				ID:         "subject-2",
				Attributes: map[string]any{"plan": tc.plan},
			})

			require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-2")))

			instances, err := te.store.Instances().ByJourney(ctx, "branching")
			require.NoError(t, err)
			require.Len(t, instances, 1)
			assert.Equal(t, models.InstanceStatusCompleted, instances[0].Status)

			entries, err := te.store.ExecutionLog().ByInstance(ctx, instances[0].ID)
			require.NoError(t, err)
			require.Len(t, entries, 3)
			assert.Equal(t, tc.wantNode, entries[2].NodeID)
		})
	}
}

type failingActions struct{}

func (failingActions) Invoke(context.Context, string, string, map[string]any) (map[string]any, error) {
	return nil, errors.New("crm unavailable")
}

func TestOrchestrator_NodeFailureFailsInstance(t *testing.T) {
	logger := testLogger()
	subjects := collaborators.NewStaticSubjectDirectory()
	set := collaborators.LocalSet(logger, subjects)
	set.Actions = failingActions{}

	te := newTestEngine(t, set)
	ctx := context.Background()

	def := welcomeDefinition()
	def.Nodes["hello"] = &models.Node{
		Type:   models.NodeTypeAction,
		Config: map[string]any{"actionName": "update-crm"},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instances, err := te.store.Instances().ByJourney(ctx, "welcome")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, models.InstanceStatusFailed, instances[0].Status)

	entries, err := te.store.ExecutionLog().ByInstance(ctx, instances[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.OutcomeFailed, entries[1].Outcome)
	assert.Contains(t, entries[1].ErrorMessage, "crm unavailable")
}

func TestOrchestrator_StepLimitFailsInstance(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	// A cyclic graph never reaches the executor in production because
	// validation rejects it at save time; the drive loop still refuses to
	// spin when handed one.
	def := &models.JourneyDefinition{
		ID:          "cyclic",
		OwnerID:     "owner-1",
		Name:        "Broken Flow",
		TriggerType: models.TriggerTypeSubjectAdded,
		Enabled:     true,
		Nodes: map[string]*models.Node{
			"start": {Type: models.NodeTypeTrigger, Successors: []string{"ping"}},
			"ping":  {Type: models.NodeTypeAction, Config: map[string]any{"actionName": "ping"}, Successors: []string{"pong"}},
			"pong":  {Type: models.NodeTypeAction, Config: map[string]any{"actionName": "pong"}, Successors: []string{"ping"}},
		},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instances, err := te.store.Instances().ByJourney(ctx, "cyclic")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, models.InstanceStatusFailed, instances[0].Status)

	entries, err := te.store.ExecutionLog().ByInstance(ctx, instances[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	last := entries[len(entries)-1]
	assert.Equal(t, models.OutcomeFailed, last.Outcome)
	assert.Contains(t, last.ErrorMessage, ErrStepLimitExceeded.Error())
}

func TestOrchestrator_CancelClearsScheduledWork(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	def := welcomeDefinition()
	def.Nodes["hello"].Successors = []string{"wait"}
	def.Nodes["wait"] = &models.Node{
		Type:       models.NodeTypeDelay,
		Config:     map[string]any{"unit": "weeks", "amount": float64(1)},
		Successors: []string{"followup"},
	}
	def.Nodes["followup"] = &models.Node{
		Type:   models.NodeTypeMessage,
		Config: map[string]any{"template": "followup-email"},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instance, err := te.store.Instances().FindLive(ctx, "welcome", "subject-1")
	require.NoError(t, err)

	require.NoError(t, te.orchestrator.Cancel(ctx, instance.ID))

	cancelled, err := te.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)

	due, err := te.store.ScheduledWork().ClaimDue(ctx, models.WorkKindResumeInstance, time.Now().UTC().Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	// Cancelling twice is an error, not a silent no-op.
	err = te.orchestrator.Cancel(ctx, instance.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInstanceNotCancellable)

	// The slot is free again for a fresh enrollment.
	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instances, err := te.store.Instances().ByJourney(ctx, "welcome")
	require.NoError(t, err)
	assert.Len(t, instances, 2)
}

// cancellingActions cancels its own instance from inside a node execution,
// standing in for an operator cancel racing the drive loop.
type cancellingActions struct {
	orchestrator *Orchestrator
}

func (a *cancellingActions) Invoke(ctx context.Context, idempotencyKey, _ string, _ map[string]any) (map[string]any, error) {
	instanceID := strings.SplitN(idempotencyKey, ":", 2)[0]

	return map[string]any{}, a.orchestrator.Cancel(ctx, instanceID)
}

func TestOrchestrator_CancelMidPassStopsAtNodeBoundary(t *testing.T) {
	logger := testLogger()
	subjects := collaborators.NewStaticSubjectDirectory()
	set := collaborators.LocalSet(logger, subjects)
	delivery := &recordingDelivery{}
	set.Delivery = delivery
	actions := &cancellingActions{}
	set.Actions = actions

	te := newTestEngine(t, set)
	actions.orchestrator = te.orchestrator
	ctx := context.Background()

	def := welcomeDefinition()
	def.Nodes["start"].Successors = []string{"halt"}
	def.Nodes["halt"] = &models.Node{
		Type:       models.NodeTypeAction,
		Config:     map[string]any{"actionName": "halt"},
		Successors: []string{"hello"},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instances, err := te.store.Instances().ByJourney(ctx, "welcome")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, models.InstanceStatusCancelled, instances[0].Status)

	// The message node downstream of the cancel never ran.
	assert.Empty(t, delivery.keys)

	// The in-flight node is logged as skipped and nothing follows it.
	entries, err := te.store.ExecutionLog().ByInstance(ctx, instances[0].ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "start", entries[0].NodeID)
	assert.Equal(t, models.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, "halt", entries[1].NodeID)
	assert.Equal(t, models.OutcomeSkipped, entries[1].Outcome)
}

// slowDelivery blocks until the call's deadline expires.
type slowDelivery struct{}

func (slowDelivery) Send(ctx context.Context, _, _, _ string, _ map[string]any) (*collaborators.DeliveryReceipt, error) {
	<-ctx.Done()

	return nil, ctx.Err()
}

func TestOrchestrator_CollaboratorTimeoutFailsInstance(t *testing.T) {
	logger := testLogger()
	subjects := collaborators.NewStaticSubjectDirectory()
	set := collaborators.LocalSet(logger, subjects)
	set.Delivery = slowDelivery{}
	set = collaborators.WithTimeouts(set, collaborators.Timeouts{
		Delivery: 10 * time.Millisecond,
		Forms:    10 * time.Millisecond,
		Actions:  10 * time.Millisecond,
	})

	te := newTestEngine(t, set)
	ctx := context.Background()

	saveDefinition(t, te.store, welcomeDefinition())

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instances, err := te.store.Instances().ByJourney(ctx, "welcome")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, models.InstanceStatusFailed, instances[0].Status)

	entries, err := te.store.ExecutionLog().ByInstance(ctx, instances[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	last := entries[len(entries)-1]
	assert.Equal(t, "hello", last.NodeID)
	assert.Equal(t, models.OutcomeFailed, last.Outcome)
	assert.Contains(t, last.ErrorMessage, context.DeadlineExceeded.Error())

	// The failed entry carries the hanging node's own timing.
	assert.GreaterOrEqual(t, last.DurationMs, int64(10))

	summary, err := NewAnalytics(testLogger(), te.store).Summary(ctx, "welcome")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ByStatus[models.InstanceStatusFailed])
}

func TestOrchestrator_ResumeAfterCancelIsNoOp(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	def := welcomeDefinition()
	def.Nodes["hello"].Successors = []string{"wait"}
	def.Nodes["wait"] = &models.Node{
		Type:       models.NodeTypeDelay,
		Config:     map[string]any{"unit": "days", "amount": float64(1)},
		Successors: []string{"followup"},
	}
	def.Nodes["followup"] = &models.Node{
		Type:   models.NodeTypeMessage,
		Config: map[string]any{"template": "followup-email"},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	instance, err := te.store.Instances().FindLive(ctx, "welcome", "subject-1")
	require.NoError(t, err)

	// Claim the wakeup first, then cancel, simulating the race between the
	// scheduler pass and an operator cancelling.
	due, err := te.store.ScheduledWork().ClaimDue(ctx, models.WorkKindResumeInstance, time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, te.orchestrator.Cancel(ctx, instance.ID))
	require.NoError(t, te.orchestrator.Resume(ctx, due[0]))

	final, err := te.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, final.Status)

	entries, err := te.store.ExecutionLog().ByInstance(ctx, instance.ID)
	require.NoError(t, err)

	for _, entry := range entries {
		assert.NotEqual(t, "followup", entry.NodeID)
	}
}

func TestOrchestrator_MultipleMatchesEnrollIndependently(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	first := welcomeDefinition()
	saveDefinition(t, te.store, first)

	second := welcomeDefinition()
	second.ID = "welcome-2"
	second.Name = "Second Welcome Flow"
	saveDefinition(t, te.store, second)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	for _, journeyID := range []string{"welcome", "welcome-2"} {
		instances, err := te.store.Instances().ByJourney(ctx, journeyID)
		require.NoError(t, err)
		assert.Len(t, instances, 1, journeyID)
	}
}

func TestOrchestrator_RejectsInvalidEvent(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})

	event := subjectAddedEvent("subject-1")
	event.SubjectID = ""

	err := te.orchestrator.OnTrigger(context.Background(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMissingSubject)
}
