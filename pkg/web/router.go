package web

import (
	"github.com/gofiber/fiber/v3"
)

// RegisterRoutes wires the journey API onto a fiber app. Kept separate from
// the server binary so tests exercise the exact production routing.
func RegisterRoutes(app *fiber.App, h *APIHandlers) {
	app.Get("/health", h.HealthCheck)

	app.Post("/events", h.IngestEvent)

	journeys := app.Group("/journeys")
	journeys.Get("/", h.GetJourneys)
	journeys.Post("/", h.CreateJourney)
	journeys.Get("/:id", h.GetJourney)
	journeys.Post("/:id/enable", h.EnableJourney)
	journeys.Post("/:id/disable", h.DisableJourney)
	journeys.Get("/:id/instances", h.GetJourneyInstances)
	journeys.Get("/:id/analytics/summary", h.GetJourneySummary)
	journeys.Get("/:id/analytics/funnel", h.GetJourneyFunnel)
	journeys.Get("/:id/analytics/trend", h.GetJourneyTrend)

	instances := app.Group("/instances")
	instances.Get("/:id", h.GetInstance)
	instances.Get("/:id/log", h.GetInstanceLog)
	instances.Post("/:id/cancel", h.CancelInstance)
}
