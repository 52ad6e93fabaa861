package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/models"
)

func seedBranchingJourney(t *testing.T, te *testEngine) {
	t.Helper()

	def := &models.JourneyDefinition{
		ID:          "onboarding",
		OwnerID:     "owner-1",
		Name:        "Onboarding Flow",
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
}

func TestAnalytics_SummaryAndFunnel(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	seedBranchingJourney(t, te)

	te.subjects.Put(&collaborators.Subject{ID: "alice", Attributes: map[string]any{"plan": "premium"}})
	te.subjects.Put(&collaborators.Subject{ID: "bob", Attributes: map[string]any{"plan": "basic"}})
	te.subjects.Put(&collaborators.Subject{ID: "carol", Attributes: map[string]any{"plan": "basic"}})

	for _, subject := range []string{"alice", "bob", "carol"} {
		require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent(subject)))
	}

	analytics := NewAnalytics(testLogger(), te.store)

	summary, err := analytics.Summary(ctx, "onboarding")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.ByStatus[models.InstanceStatusCompleted])
	assert.InDelta(t, 1.0, summary.CompletionRate, 0.001)

	funnel, err := analytics.Funnel(ctx, "onboarding")
	require.NoError(t, err)
	require.Len(t, funnel, 4)

	// Graph order puts the trigger first and both branches after the split.
	assert.Equal(t, "start", funnel[0].NodeID)
	assert.Equal(t, "split", funnel[1].NodeID)

	byNode := map[string]FunnelStep{}
	for _, step := range funnel {
		byNode[step.NodeID] = step
	}

	assert.Equal(t, 3, byNode["start"].Entered)
	assert.Equal(t, 3, byNode["split"].Succeeded)
	assert.Equal(t, 1, byNode["vip"].Entered)
	assert.Equal(t, 2, byNode["standard"].Entered)

	// Conversion follows the instances that reached each node: the vip
	// branch was entered once and passed once.
	assert.InDelta(t, 1.0, byNode["vip"].Conversion, 0.001)
	assert.InDelta(t, 0.0, byNode["vip"].DropOff, 0.001)
	assert.InDelta(t, 0.0, byNode["start"].DropOff, 0.001)
}

func TestAnalytics_Trend(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	saveDefinition(t, te.store, welcomeDefinition())
	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	analytics := NewAnalytics(testLogger(), te.store)

	today := time.Now().UTC().Truncate(24 * time.Hour)

	points, err := analytics.Trend(ctx, "welcome", today.Add(-7*24*time.Hour), today)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, today, points[0].Day)
	assert.Equal(t, 1, points[0].Started)
	assert.Equal(t, 1, points[0].Completed)
}
