package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/dedup"
	"github.com/vowflow/journey/pkg/engine"
	"github.com/vowflow/journey/pkg/eventbus"
	"github.com/vowflow/journey/pkg/events"
	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
	"github.com/vowflow/journey/pkg/persistence/file"
	"github.com/vowflow/journey/pkg/web"
)

type capturingPublisher struct {
	published []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

type testAPI struct {
	app          *fiber.App
	store        persistence.Persistence
	orchestrator *engine.Orchestrator
	publisher    *capturingPublisher
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewPersistence(t.TempDir())
	subjects := collaborators.NewStaticSubjectDirectory(&collaborators.Subject{
		ID:         "subject-1",
		Attributes: map[string]any{"email": "pat@example.com"},
	})
	set := collaborators.LocalSet(logger, subjects)

	matcher := engine.NewMatcher(logger, store.Definitions())
	executor := engine.NewExecutor(logger, set)
	orchestrator := engine.NewOrchestrator(logger, store, matcher, executor, subjects, nil)
	analytics := engine.NewAnalytics(logger, store)
	publisher := &capturingPublisher{}

	handlers := web.NewAPIHandlers(
		logger,
		store,
		orchestrator,
		analytics,
		publisher,
		dedup.NewMemory(time.Minute),
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()
	web.RegisterRoutes(app, handlers)

	return &testAPI{app: app, store: store, orchestrator: orchestrator, publisher: publisher}
}

func validJourneyRequest() web.CreateJourneyRequest {
	return web.CreateJourneyRequest{
		ID:          "welcome",
		Name:        "Welcome Flow",
		OwnerID:     "owner-1",
		TriggerType: models.TriggerTypeSubjectAdded,
		Enabled:     true,
		Nodes: map[string]*models.Node{
			"start": {Type: models.NodeTypeTrigger, Successors: []string{"hello"}},
			"hello": {Type: models.NodeTypeMessage, Config: map[string]any{"template": "welcome-email"}},
		},
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func TestCreateJourney(t *testing.T) {
	api := setupTestAPI(t)

	resp := postJSON(t, api.app, "/journeys/", validJourneyRequest())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var def models.JourneyDefinition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&def))
	assert.Equal(t, "welcome", def.ID)
	assert.True(t, def.Enabled)

	stored, err := api.store.Definitions().GetByID(context.Background(), "welcome")
	require.NoError(t, err)
	assert.Equal(t, "Welcome Flow", stored.Name)
}

func TestCreateJourney_RejectsCyclicGraph(t *testing.T) {
	api := setupTestAPI(t)

	req := validJourneyRequest()
	req.Nodes["hello"].Successors = []string{"loop"}
	req.Nodes["loop"] = &models.Node{
		Type:       models.NodeTypeAction,
		Config:     map[string]any{"actionName": "noop"},
		Successors: []string{"hello"},
	}

	resp := postJSON(t, api.app, "/journeys/", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cycle")
}

func TestCreateJourney_RejectsMissingTrigger(t *testing.T) {
	api := setupTestAPI(t)

	req := validJourneyRequest()
	req.Nodes = map[string]*models.Node{
		"hello": {Type: models.NodeTypeMessage, Config: map[string]any{"template": "welcome-email"}},
	}

	resp := postJSON(t, api.app, "/journeys/", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetJourney_NotFound(t *testing.T) {
	api := setupTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/journeys/missing", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEnableDisableJourney(t *testing.T) {
	api := setupTestAPI(t)

	create := validJourneyRequest()
	create.Enabled = false
	postJSON(t, api.app, "/journeys/", create)

	resp := postJSON(t, api.app, "/journeys/welcome/enable", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := api.store.Definitions().GetByID(context.Background(), "welcome")
	require.NoError(t, err)
	assert.True(t, stored.Enabled)

	resp = postJSON(t, api.app, "/journeys/welcome/disable", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err = api.store.Definitions().GetByID(context.Background(), "welcome")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
}

func TestIngestEvent_PublishesAndDeduplicates(t *testing.T) {
	api := setupTestAPI(t)

	event := web.IngestEventRequest{
		EventID:     "evt-1",
		SubjectID:   "subject-1",
		TriggerType: models.TriggerTypeSubjectAdded,
		Payload:     map[string]any{"source": "import"},
	}

	resp := postJSON(t, api.app, "/events", event)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack web.IngestEventResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.Equal(t, "evt-1", ack.EventID)
	assert.False(t, ack.Duplicate)

	require.Len(t, api.publisher.published, 1)
	received, ok := api.publisher.published[0].(*events.TriggerReceived)
	require.True(t, ok)
	assert.Equal(t, "subject-1", received.Event.SubjectID)

	// Same event id again: acknowledged but not re-published.
	resp = postJSON(t, api.app, "/events", event)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	assert.True(t, ack.Duplicate)
	assert.Len(t, api.publisher.published, 1)
}

func TestIngestEvent_RejectsDateEventWithoutReferenceDate(t *testing.T) {
	api := setupTestAPI(t)

	event := web.IngestEventRequest{
		SubjectID:   "subject-1",
		TriggerType: models.TriggerTypeDateBased,
	}

	resp := postJSON(t, api.app, "/events", event)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelInstance(t *testing.T) {
	api := setupTestAPI(t)
	ctx := context.Background()

	create := validJourneyRequest()
	create.Nodes["hello"].Successors = []string{"wait"}
	create.Nodes["wait"] = &models.Node{
		Type:       models.NodeTypeDelay,
		Config:     map[string]any{"unit": "days", "amount": float64(2)},
		Successors: []string{"followup"},
	}
	create.Nodes["followup"] = &models.Node{
		Type:   models.NodeTypeMessage,
		Config: map[string]any{"template": "followup-email"},
	}
	postJSON(t, api.app, "/journeys/", create)

	event := models.NewTriggerEvent("subject-1", models.TriggerTypeSubjectAdded, nil)
	require.NoError(t, api.orchestrator.OnTrigger(ctx, event))

	instance, err := api.store.Instances().FindLive(ctx, "welcome", "subject-1")
	require.NoError(t, err)

	resp := postJSON(t, api.app, "/instances/"+instance.ID+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancelled, err := api.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, cancelled.Status)

	// Cancelling a terminal instance conflicts.
	resp = postJSON(t, api.app, "/instances/"+instance.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestInstanceLogAndAnalytics(t *testing.T) {
	api := setupTestAPI(t)
	ctx := context.Background()

	postJSON(t, api.app, "/journeys/", validJourneyRequest())

	event := models.NewTriggerEvent("subject-1", models.TriggerTypeSubjectAdded, nil)
	require.NoError(t, api.orchestrator.OnTrigger(ctx, event))

	instances, err := api.store.Instances().ByJourney(ctx, "welcome")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	req := httptest.NewRequest(http.MethodGet, "/instances/"+instances[0].ID+"/log", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var logBody struct {
		Entries    []*models.ExecutionLogEntry `json:"entries"`
		TotalCount int                         `json:"total_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logBody))
	assert.Equal(t, 2, logBody.TotalCount)

	req = httptest.NewRequest(http.MethodGet, "/journeys/welcome/analytics/summary", nil)
	resp, err = api.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary engine.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.Total)
	assert.InDelta(t, 1.0, summary.CompletionRate, 0.001)

	req = httptest.NewRequest(http.MethodGet, "/journeys/welcome/analytics/funnel", nil)
	resp, err = api.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var funnel struct {
		Steps []engine.FunnelStep `json:"steps"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&funnel))
	require.Len(t, funnel.Steps, 2)
	assert.Equal(t, "start", funnel.Steps[0].NodeID)
}
