// Package persistence provides the data storage abstraction for journey
// definitions, instances, the execution log and scheduled work.
package persistence

import (
	"context"
	"time"

	"github.com/vowflow/journey/pkg/models"
)

// Persistence bundles the repositories one storage backend provides.
type Persistence interface {
	Definitions() DefinitionRepository
	Instances() InstanceRepository
	ExecutionLog() ExecutionLogRepository
	ScheduledWork() ScheduledWorkRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores journey definitions.
type DefinitionRepository interface {
	Save(ctx context.Context, def *models.JourneyDefinition) error
	GetByID(ctx context.Context, id string) (*models.JourneyDefinition, error)
	All(ctx context.Context) ([]*models.JourneyDefinition, error)
	// EnabledByTriggerType returns enabled definitions whose trigger type
	// matches; the common lookup on the hot path of trigger matching.
	EnabledByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.JourneyDefinition, error)
}

// InstanceRepository stores journey instances with optimistic concurrency.
type InstanceRepository interface {
	// CreateLive inserts a new live instance. It returns ErrInstanceExists
	// when a live instance already occupies the (journeyID, subjectID) slot;
	// this is the engine's idempotent-enrollment guard.
	CreateLive(ctx context.Context, instance *models.JourneyInstance) error
	GetByID(ctx context.Context, id string) (*models.JourneyInstance, error)
	// FindLive returns the live (active or waiting) instance for the pair,
	// or ErrInstanceNotFound.
	FindLive(ctx context.Context, journeyID, subjectID string) (*models.JourneyInstance, error)
	// Update writes the instance if and only if the stored version equals
	// instance.Version, then bumps it. A stale write returns
	// ErrVersionConflict and changes nothing.
	Update(ctx context.Context, instance *models.JourneyInstance) error
	ByJourney(ctx context.Context, journeyID string) ([]*models.JourneyInstance, error)
}

// ExecutionLogRepository is append-only storage of node execution attempts.
type ExecutionLogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLogEntry) error
	ByInstance(ctx context.Context, instanceID string) ([]*models.ExecutionLogEntry, error)
	ByJourney(ctx context.Context, journeyID string) ([]*models.ExecutionLogEntry, error)
}

// ScheduledWorkRepository stores durable wakeup pointers.
type ScheduledWorkRepository interface {
	Save(ctx context.Context, work *models.ScheduledWork) error
	// ClaimDue atomically removes and returns all work of the given kind
	// with DueAt <= now. A claimed row is gone even if the subsequent resume
	// fails, so a wakeup fires at most once.
	ClaimDue(ctx context.Context, kind models.WorkKind, now time.Time) ([]*models.ScheduledWork, error)
	// DeleteByInstance clears pending wakeups, used on cancellation.
	DeleteByInstance(ctx context.Context, instanceID string) error
}
