package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
	"github.com/vowflow/journey/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"execution_log", "scheduled_work", "journey_instances", "journey_definitions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if os.Getenv("JOURNEY_INTEGRATION_TESTS") == "" {
		t.Skip("set JOURNEY_INTEGRATION_TESTS to run container-backed tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("journey_test"),
			postgres.WithUsername("journey"),
			postgres.WithPassword("journey"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx
}

func integrationDefinition(id string) *models.JourneyDefinition {
	return &models.JourneyDefinition{
		ID:          id,
		OwnerID:     "owner-1",
		Name:        "Integration journey",
		TriggerType: models.TriggerTypeSubjectAdded,
		Enabled:     true,
		Nodes: map[string]*models.Node{
			"start": {Type: models.NodeTypeTrigger, Successors: []string{"notify"}},
			"notify": {
				Type:       models.NodeTypeMessage,
				Config:     map[string]any{"template": "welcome"},
				Successors: []string{},
			},
		},
	}
}

func TestIntegration_DefinitionRoundTrip(t *testing.T) {
	p, ctx := setupTestDB(t)

	def := integrationDefinition("j-int-1")
	require.NoError(t, p.Definitions().Save(ctx, def))

	loaded, err := p.Definitions().GetByID(ctx, "j-int-1")
	require.NoError(t, err)
	assert.Equal(t, def.Name, loaded.Name)
	assert.Equal(t, def.TriggerType, loaded.TriggerType)
	require.Contains(t, loaded.Nodes, "start")
	assert.Equal(t, []string{"notify"}, loaded.Nodes["start"].Successors)

	enabled, err := p.Definitions().EnabledByTriggerType(ctx, models.TriggerTypeSubjectAdded)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestIntegration_InstanceGuardAndVersioning(t *testing.T) {
	p, ctx := setupTestDB(t)

	require.NoError(t, p.Definitions().Save(ctx, integrationDefinition("j-int-2")))

	event := models.NewTriggerEvent("subject-9", models.TriggerTypeSubjectAdded, nil)
	instance := models.NewJourneyInstance("j-int-2", "start", event, nil)
	require.NoError(t, p.Instances().CreateLive(ctx, instance))

	// Partial unique index rejects a second live enrollment.
	dup := models.NewJourneyInstance("j-int-2", "start", event, nil)
	err := p.Instances().CreateLive(ctx, dup)
	assert.ErrorIs(t, err, persistence.ErrInstanceExists)

	// Conditional update: stale version loses.
	stale, err := p.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)

	instance.Status = models.InstanceStatusWaiting
	require.NoError(t, p.Instances().Update(ctx, instance))

	stale.Status = models.InstanceStatusCompleted
	err = p.Instances().Update(ctx, stale)
	assert.ErrorIs(t, err, persistence.ErrVersionConflict)
}

func TestIntegration_ScheduledWorkClaim(t *testing.T) {
	p, ctx := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, p.ScheduledWork().Save(ctx, models.NewResumeWork("inst-a", "wait", now.Add(-time.Minute))))
	require.NoError(t, p.ScheduledWork().Save(ctx, models.NewResumeWork("inst-b", "wait", now.Add(time.Hour))))

	claimed, err := p.ScheduledWork().ClaimDue(ctx, models.WorkKindResumeInstance, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "inst-a", claimed[0].InstanceID)

	claimed, err = p.ScheduledWork().ClaimDue(ctx, models.WorkKindResumeInstance, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestIntegration_ExecutionLogOrdering(t *testing.T) {
	p, ctx := setupTestDB(t)

	event := models.NewTriggerEvent("subject-3", models.TriggerTypeSubjectAdded, nil)
	instance := models.NewJourneyInstance("j-int-3", "start", event, nil)
	require.NoError(t, p.Instances().CreateLive(ctx, instance))

	for _, nodeID := range []string{"start", "notify"} {
		entry := models.NewLogEntry(instance.ID, nodeID, models.NodeTypeMessage, models.OutcomeSuccess, time.Now())
		require.NoError(t, p.ExecutionLog().Append(ctx, entry))
	}

	entries, err := p.ExecutionLog().ByInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "start", entries[0].NodeID)
	assert.Equal(t, "notify", entries[1].NodeID)
}
