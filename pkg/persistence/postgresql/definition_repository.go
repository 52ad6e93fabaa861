package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// DefinitionRepository stores journey definitions with the node graph as a
// JSONB document.
type DefinitionRepository struct {
	db *sql.DB
}

func (r *DefinitionRepository) Save(ctx context.Context, def *models.JourneyDefinition) error {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes for definition %s: %w", def.ID, err)
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}

	def.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journey_definitions (id, owner_id, name, trigger_type, enabled, nodes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			trigger_type = EXCLUDED.trigger_type,
			enabled = EXCLUDED.enabled,
			nodes = EXCLUDED.nodes,
			updated_at = EXCLUDED.updated_at
	`, def.ID, def.OwnerID, def.Name, string(def.TriggerType), def.Enabled, nodes, def.CreatedAt, def.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save definition %s: %w", def.ID, err)
	}

	return nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*models.JourneyDefinition, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, trigger_type, enabled, nodes, created_at, updated_at
		FROM journey_definitions WHERE id = $1
	`, id)

	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrDefinitionNotFound
	}

	return def, err
}

func (r *DefinitionRepository) All(ctx context.Context) ([]*models.JourneyDefinition, error) {
	return r.query(ctx, `
		SELECT id, owner_id, name, trigger_type, enabled, nodes, created_at, updated_at
		FROM journey_definitions ORDER BY created_at
	`)
}

func (r *DefinitionRepository) EnabledByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.JourneyDefinition, error) {
	return r.query(ctx, `
		SELECT id, owner_id, name, trigger_type, enabled, nodes, created_at, updated_at
		FROM journey_definitions WHERE enabled AND trigger_type = $1 ORDER BY created_at
	`, string(triggerType))
}

func (r *DefinitionRepository) query(ctx context.Context, query string, args ...any) ([]*models.JourneyDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}
	defer rows.Close()

	defs := []*models.JourneyDefinition{}

	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	return defs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.JourneyDefinition, error) {
	var (
		def         models.JourneyDefinition
		triggerType string
		nodes       []byte
	)

	err := row.Scan(&def.ID, &def.OwnerID, &def.Name, &triggerType, &def.Enabled, &nodes, &def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return nil, err
	}

	def.TriggerType = models.TriggerType(triggerType)

	if err := json.Unmarshal(nodes, &def.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes for definition %s: %w", def.ID, err)
	}

	return &def, nil
}
