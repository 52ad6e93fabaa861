// Package postgresql provides PostgreSQL persistence for the journey engine.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// PostgreSQL driver registration.
	_ "github.com/lib/pq"

	"github.com/vowflow/journey/pkg/persistence"
	"github.com/vowflow/journey/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	definitions   *DefinitionRepository
	instances     *InstanceRepository
	executionLog  *ExecutionLogRepository
	scheduledWork *ScheduledWorkRepository
}

// NewPersistence opens a connection, runs migrations and returns the
// persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		definitions:   &DefinitionRepository{db: database},
		instances:     &InstanceRepository{db: database},
		executionLog:  &ExecutionLogRepository{db: database},
		scheduledWork: &ScheduledWorkRepository{db: database},
	}, nil
}

func (p *Persistence) Definitions() persistence.DefinitionRepository {
	return p.definitions
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) ExecutionLog() persistence.ExecutionLogRepository {
	return p.executionLog
}

func (p *Persistence) ScheduledWork() persistence.ScheduledWorkRepository {
	return p.scheduledWork
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
