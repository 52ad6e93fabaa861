package web

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/vowflow/journey/pkg/dedup"
	"github.com/vowflow/journey/pkg/engine"
	"github.com/vowflow/journey/pkg/eventbus"
	"github.com/vowflow/journey/pkg/events"
	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

type APIHandlers struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	orchestrator *engine.Orchestrator
	analytics    *engine.Analytics
	publisher    eventbus.EventPublisher
	deduper      dedup.Deduper
	validator    *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	store persistence.Persistence,
	orchestrator *engine.Orchestrator,
	analytics *engine.Analytics,
	publisher eventbus.EventPublisher,
	deduper dedup.Deduper,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:       logger.With("module", "api_handlers"),
		persistence:  store,
		orchestrator: orchestrator,
		analytics:    analytics,
		publisher:    publisher,
		deduper:      deduper,
		validator:    validate,
	}
}

// IngestEvent accepts a business trigger event and hands it to the engine.
// The endpoint is asynchronous: 202 means accepted, not processed. Events
// carrying an already-seen id are acknowledged without re-publishing.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	var req IngestEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	event := &models.TriggerEvent{
		EventID:       req.EventID,
		SubjectID:     req.SubjectID,
		TriggerType:   req.TriggerType,
		Payload:       req.Payload,
		ReferenceDate: req.ReferenceDate,
		OccurredAt:    time.Now().UTC(),
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	if err := event.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if h.deduper != nil {
		seen, err := h.deduper.Seen(c.Context(), event.EventID)
		if err != nil {
			return internalError(c, err)
		}

		if seen {
			return c.Status(fiber.StatusAccepted).JSON(IngestEventResponse{
				EventID:   event.EventID,
				Accepted:  true,
				Duplicate: true,
			})
		}
	}

	if err := h.publisher.Publish(c.Context(), event.EventID, events.NewTriggerReceived(event)); err != nil {
		h.logger.Error("Failed to publish trigger event", "event_id", event.EventID, "error", err)

		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(IngestEventResponse{
		EventID:  event.EventID,
		Accepted: true,
	})
}

func (h *APIHandlers) GetJourneys(c fiber.Ctx) error {
	defs, err := h.persistence.Definitions().All(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"journeys": defs, "total_count": len(defs)})
}

func (h *APIHandlers) GetJourney(c fiber.Ctx) error {
	def, err := h.persistence.Definitions().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(def)
}

// CreateJourney validates the whole graph before saving: exactly one trigger
// node, resolvable successors, reachability, no cycles and per-type config.
func (h *APIHandlers) CreateJourney(c fiber.Ctx) error {
	var req CreateJourneyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	def := &models.JourneyDefinition{
		ID:          req.ID,
		OwnerID:     req.OwnerID,
		Name:        req.Name,
		TriggerType: req.TriggerType,
		Enabled:     req.Enabled,
		Nodes:       req.Nodes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if def.ID == "" {
		def.ID = uuid.New().String()
	}

	if err := def.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.Definitions().Save(c.Context(), def); err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(def)
}

func (h *APIHandlers) EnableJourney(c fiber.Ctx) error {
	return h.setEnabled(c, true)
}

func (h *APIHandlers) DisableJourney(c fiber.Ctx) error {
	return h.setEnabled(c, false)
}

func (h *APIHandlers) setEnabled(c fiber.Ctx, enabled bool) error {
	def, err := h.persistence.Definitions().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	if enabled {
		// Defective graphs must not become matchable.
		if err := def.Validate(); err != nil {
			return badRequest(c, err.Error())
		}
	}

	def.Enabled = enabled
	def.UpdatedAt = time.Now().UTC()

	if err := h.persistence.Definitions().Save(c.Context(), def); err != nil {
		return internalError(c, err)
	}

	return c.JSON(def)
}

func (h *APIHandlers) GetJourneyInstances(c fiber.Ctx) error {
	journeyID := c.Params("id")

	if _, err := h.persistence.Definitions().GetByID(c.Context(), journeyID); err != nil {
		return handleStoreError(c, err)
	}

	instances, err := h.persistence.Instances().ByJourney(c.Context(), journeyID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"instances": instances, "total_count": len(instances)})
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	instance, err := h.persistence.Instances().GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) GetInstanceLog(c fiber.Ctx) error {
	instanceID := c.Params("id")

	if _, err := h.persistence.Instances().GetByID(c.Context(), instanceID); err != nil {
		return handleStoreError(c, err)
	}

	entries, err := h.persistence.ExecutionLog().ByInstance(c.Context(), instanceID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"entries": entries, "total_count": len(entries)})
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	if err := h.orchestrator.Cancel(c.Context(), c.Params("id")); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetJourneySummary(c fiber.Ctx) error {
	summary, err := h.analytics.Summary(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetJourneyFunnel(c fiber.Ctx) error {
	funnel, err := h.analytics.Funnel(c.Context(), c.Params("id"))
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"steps": funnel})
}

func (h *APIHandlers) GetJourneyTrend(c fiber.Ctx) error {
	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.Add(-30 * 24 * time.Hour)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return badRequest(c, "invalid from date, expected YYYY-MM-DD")
		}

		from = parsed
	}

	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return badRequest(c, "invalid to date, expected YYYY-MM-DD")
		}

		to = parsed
	}

	points, err := h.analytics.Trend(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(fiber.Map{"points": points})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
