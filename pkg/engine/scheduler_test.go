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

func TestScheduler_ResumePassWakesDueInstances(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	def := welcomeDefinition()
	def.Nodes["hello"].Successors = []string{"wait"}
	def.Nodes["wait"] = &models.Node{
		Type:       models.NodeTypeDelay,
		Config:     map[string]any{"unit": "minutes", "amount": float64(30)},
		Successors: []string{"followup"},
	}
	def.Nodes["followup"] = &models.Node{
		Type:   models.NodeTypeMessage,
		Config: map[string]any{"template": "followup-email"},
	}
	saveDefinition(t, te.store, def)

	require.NoError(t, te.orchestrator.OnTrigger(ctx, subjectAddedEvent("subject-1")))

	scheduler := NewScheduler(testLogger(), te.store, te.orchestrator, te.subjects, DefaultSchedulerConfig())

	// Before the delay elapses nothing is due.
	scheduler.ResumePass(ctx)

	instance, err := te.store.Instances().FindLive(ctx, "welcome", "subject-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusWaiting, instance.Status)

	scheduler.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	scheduler.ResumePass(ctx)

	resumed, err := te.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCompleted, resumed.Status)

	// The wakeup was consumed; running the pass again changes nothing.
	scheduler.ResumePass(ctx)

	entries, err := te.store.ExecutionLog().ByInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestScheduler_DateTriggerPassEnrollsSubjectsInWindow(t *testing.T) {
	te := newTestEngine(t, collaborators.Set{})
	ctx := context.Background()

	def := &models.JourneyDefinition{
		ID:          "countdown",
		OwnerID:     "owner-1",
		Name:        "Countdown Flow",
		TriggerType: models.TriggerTypeDateBased,
		Enabled:     true,
		Nodes: map[string]*models.Node{
			"start": {
				Type:       models.NodeTypeTrigger,
				Config:     map[string]any{"daysBeforeReference": float64(7)},
				Successors: []string{"remind"},
			},
			"remind": {Type: models.NodeTypeMessage, Config: map[string]any{"template": "week-out-reminder"}},
		},
	}
	saveDefinition(t, te.store, def)

	inWindow := time.Now().UTC().Add(7 * 24 * time.Hour)
	farOut := time.Now().UTC().Add(90 * 24 * time.Hour)

	te.subjects.Put(&collaborators.Subject{ID: "soon", ReferenceDate: &inWindow})
	te.subjects.Put(&collaborators.Subject{ID: "later", ReferenceDate: &farOut})
	te.subjects.Put(&collaborators.Subject{ID: "no-date"})

	scheduler := NewScheduler(testLogger(), te.store, te.orchestrator, te.subjects, DefaultSchedulerConfig())
	scheduler.DateTriggerPass(ctx)

	instances, err := te.store.Instances().ByJourney(ctx, "countdown")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "soon", instances[0].SubjectID)
	assert.Equal(t, models.InstanceStatusCompleted, instances[0].Status)
}
