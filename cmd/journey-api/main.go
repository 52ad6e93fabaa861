package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/vowflow/journey/pkg/cmd"
	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/engine"
	"github.com/vowflow/journey/pkg/events"
	"github.com/vowflow/journey/pkg/log"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "journey-api",
		Usage:                 "Manage journey definitions and ingest trigger events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for event deduplication (in-memory when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "dedup-ttl",
				Usage:   "How long event ids are remembered for deduplication",
				Value:   24 * time.Hour,
				Sources: cli.EnvVars("DEDUP_TTL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing journey API")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			triggerBus := cmd.NewEventBus(command.String("event-bus"), "journey-api", events.TriggerTopic, logger)
			defer func() {
				if err := triggerBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close trigger bus", "error", err)
				}
			}()

			instanceBus := cmd.NewEventBus(command.String("event-bus"), "journey-api", events.InstanceTopic, logger)
			defer func() {
				if err := instanceBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close instance bus", "error", err)
				}
			}()

			deduper := cmd.NewDeduper(command.String("redis-url"), command.Duration("dedup-ttl"))

			// The API shares the engine's orchestrator wiring for the cancel
			// endpoint; node execution never runs in this process.
			subjects := collaborators.NewStaticSubjectDirectory()
			set := collaborators.LocalSet(logger, subjects)
			matcher := engine.NewMatcher(logger, store.Definitions())
			executor := engine.NewExecutor(logger, set)
			orchestrator := engine.NewOrchestrator(logger, store, matcher, executor, subjects, instanceBus)
			analytics := engine.NewAnalytics(logger, store)

			api := NewAPI(logger, store, orchestrator, analytics, triggerBus, deduper)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
