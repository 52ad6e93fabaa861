package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/vowflow/journey/pkg/cmd"
	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/engine"
	"github.com/vowflow/journey/pkg/events"
	"github.com/vowflow/journey/pkg/log"
	"github.com/vowflow/journey/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "journey-engine",
		EnableShellCompletion: true,
		Usage:                 "Consume trigger events and execute journey instances",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "engine-id",
				Aliases: []string{"id"},
				Usage:   "Custom engine ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ENGINE_ID"),
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
				Name:    "action-webhook-url",
				Usage:   "Webhook endpoint for action nodes (logged locally when empty)",
				Value:   "",
				Sources: cli.EnvVars("ACTION_WEBHOOK_URL"),
			},
			&cli.StringFlag{
				Name:    "resume-schedule",
				Usage:   "Cron cadence of the delay resume pass",
				Value:   engine.DefaultSchedulerConfig().ResumeSchedule,
				Sources: cli.EnvVars("RESUME_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "date-schedule",
				Usage:   "Cron cadence of the date-based trigger pass",
				Value:   engine.DefaultSchedulerConfig().DateSchedule,
				Sources: cli.EnvVars("DATE_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Concurrent instance resumptions per scheduler pass",
				Value:   engine.DefaultSchedulerConfig().Workers,
				Sources: cli.EnvVars("WORKERS"),
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

			engineID := command.String("engine-id")
			if engineID == "" {
				engineID = "engine-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("journey-engine").With("engine_id", engineID)

			logger.InfoContext(ctx, "Initializing journey engine")

			store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			triggerBus := cmd.NewEventBus(command.String("event-bus"), "journey-engine", events.TriggerTopic, logger)
			defer func() {
				if err := triggerBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close trigger bus", "error", err)
				}
			}()

			instanceBus := cmd.NewEventBus(command.String("event-bus"), "journey-engine", events.InstanceTopic, logger)
			defer func() {
				if err := instanceBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close instance bus", "error", err)
				}
			}()

			deduper := cmd.NewDeduper(command.String("redis-url"), command.Duration("dedup-ttl"))

			tracer, err := otelhelper.NewTracer(ctx, "journey-engine")
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

				return err
			}

			subjects := collaborators.NewStaticSubjectDirectory()
			set := collaborators.LocalSet(logger, subjects)

			if endpoint := command.String("action-webhook-url"); endpoint != "" {
				set.Actions = collaborators.NewWebhookActionService(endpoint)
			}

			set = collaborators.WithTimeouts(set, collaborators.DefaultTimeouts())

			manager := NewEngineManager(
				engineID,
				logger,
				store,
				triggerBus,
				instanceBus,
				deduper,
				tracer,
				set,
				subjects,
				engine.SchedulerConfig{
					ResumeSchedule: command.String("resume-schedule"),
					DateSchedule:   command.String("date-schedule"),
					Workers:        command.Int("workers"),
				},
			)

			if err := manager.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start journey engine", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
