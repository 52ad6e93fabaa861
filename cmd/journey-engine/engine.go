// Package main provides the journey engine process: the trigger consumer,
// the orchestrator and the temporal scheduler in one binary.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vowflow/journey/pkg/collaborators"
	"github.com/vowflow/journey/pkg/dedup"
	"github.com/vowflow/journey/pkg/engine"
	"github.com/vowflow/journey/pkg/eventbus"
	"github.com/vowflow/journey/pkg/events"
	"github.com/vowflow/journey/pkg/otelhelper"
	"github.com/vowflow/journey/pkg/persistence"
)

type EngineManager struct {
	id           string
	logger       *slog.Logger
	persistence  persistence.Persistence
	triggerBus   eventbus.EventBus
	instanceBus  eventbus.EventBus
	deduper      dedup.Deduper
	tracer       trace.Tracer
	orchestrator *engine.Orchestrator
	scheduler    *engine.Scheduler
}

func NewEngineManager(
	id string,
	logger *slog.Logger,
	store persistence.Persistence,
	triggerBus eventbus.EventBus,
	instanceBus eventbus.EventBus,
	deduper dedup.Deduper,
	tracer trace.Tracer,
	set collaborators.Set,
	subjects collaborators.SubjectDirectory,
	schedulerConfig engine.SchedulerConfig,
) *EngineManager {
	matcher := engine.NewMatcher(logger, store.Definitions())
	executor := engine.NewExecutor(logger, set)
	orchestrator := engine.NewOrchestrator(logger, store, matcher, executor, subjects, instanceBus)
	scheduler := engine.NewScheduler(logger, store, orchestrator, subjects, schedulerConfig)

	return &EngineManager{
		id:           id,
		logger:       logger.With("module", "engine_manager"),
		persistence:  store,
		triggerBus:   triggerBus,
		instanceBus:  instanceBus,
		deduper:      deduper,
		tracer:       tracer,
		orchestrator: orchestrator,
		scheduler:    scheduler,
	}
}

func (m *EngineManager) Start(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Starting journey engine")

	if err := m.triggerBus.Handle(events.TriggerReceivedEvent, m.handleTriggerReceived); err != nil {
		return err
	}

	if err := m.triggerBus.Subscribe(ctx); err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to trigger bus", "error", err)

		return err
	}

	if err := m.scheduler.Start(ctx); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Journey engine started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	m.logger.InfoContext(ctx, "Shutting down journey engine...")

	return m.scheduler.Stop(ctx)
}

func (m *EngineManager) handleTriggerReceived(ctx context.Context, event any) error {
	received, ok := event.(*events.TriggerReceived)
	if !ok || received.Event == nil {
		m.logger.ErrorContext(ctx, "Invalid payload for TriggerReceived event")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "engine.trigger consume",
		attribute.String(otelhelper.EventIDKey, received.Event.EventID),
		attribute.String(otelhelper.SubjectIDKey, received.Event.SubjectID),
		attribute.String(otelhelper.TriggerTypeKey, string(received.Event.TriggerType)),
		attribute.String(otelhelper.ServiceIDKey, m.id),
	)
	defer span.End()

	logger := m.logger.With(
		"event_id", received.Event.EventID,
		"subject_id", received.Event.SubjectID,
		"trigger_type", received.Event.TriggerType,
	)
	logger.InfoContext(ctx, "Processing trigger event")

	// The ingress deduplicates too, but events may reach the bus from other
	// producers, so the consumer keeps its own guard.
	if m.deduper != nil {
		seen, err := m.deduper.Seen(ctx, received.Event.EventID)
		if err != nil {
			logger.ErrorContext(ctx, "Deduplication check failed", "error", err)
		} else if seen {
			logger.InfoContext(ctx, "Dropping duplicate trigger event")

			return nil
		}
	}

	if err := m.orchestrator.OnTrigger(ctx, received.Event); err != nil {
		logger.ErrorContext(ctx, "Failed to process trigger event", "error", err)
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}
