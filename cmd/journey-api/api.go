// Package main provides the journey API server: definition management,
// event ingress, instance inspection and analytics.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/vowflow/journey/pkg/dedup"
	"github.com/vowflow/journey/pkg/engine"
	"github.com/vowflow/journey/pkg/eventbus"
	"github.com/vowflow/journey/pkg/persistence"
	"github.com/vowflow/journey/pkg/web"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	orchestrator *engine.Orchestrator
	analytics    *engine.Analytics
	publisher    eventbus.EventPublisher
	deduper      dedup.Deduper
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	orchestrator *engine.Orchestrator,
	analytics *engine.Analytics,
	publisher eventbus.EventPublisher,
	deduper dedup.Deduper,
) *API {
	return &API{
		logger:       logger,
		persistence:  store,
		orchestrator: orchestrator,
		analytics:    analytics,
		publisher:    publisher,
		deduper:      deduper,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.logger,
		a.persistence,
		a.orchestrator,
		a.analytics,
		a.publisher,
		a.deduper,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Journey API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
