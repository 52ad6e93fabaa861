package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// InstanceRepository stores journey instances. The enrollment guard is the
// partial unique index on live (journey_id, subject_id); optimistic writes
// are a conditional UPDATE on the version column.
type InstanceRepository struct {
	db *sql.DB
}

const instanceColumns = `
	id, journey_id, subject_id, status, current_node_id, step_memory,
	context, reference_date, version, created_at, updated_at, completed_at
`

func (r *InstanceRepository) CreateLive(ctx context.Context, instance *models.JourneyInstance) error {
	stepMemory, context, err := marshalInstanceState(instance)
	if err != nil {
		return persistence.NewInstanceError("CreateLive", instance.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journey_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, instance.ID, instance.JourneyID, instance.SubjectID, string(instance.Status),
		instance.CurrentNodeID, stepMemory, context, instance.ReferenceDate,
		instance.Version, instance.CreatedAt, instance.UpdatedAt, instance.CompletedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return persistence.NewInstanceError("CreateLive", instance.ID, persistence.ErrInstanceExists)
	}

	if err != nil {
		return persistence.NewInstanceError("CreateLive", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.JourneyInstance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+` FROM journey_instances WHERE id = $1
	`, id)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	return instance, err
}

func (r *InstanceRepository) FindLive(ctx context.Context, journeyID, subjectID string) (*models.JourneyInstance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+instanceColumns+` FROM journey_instances
		WHERE journey_id = $1 AND subject_id = $2 AND status IN ('active', 'waiting')
	`, journeyID, subjectID)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrInstanceNotFound
	}

	return instance, err
}

func (r *InstanceRepository) Update(ctx context.Context, instance *models.JourneyInstance) error {
	stepMemory, context, err := marshalInstanceState(instance)
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	instance.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE journey_instances SET
			status = $1, current_node_id = $2, step_memory = $3, context = $4,
			reference_date = $5, version = version + 1, updated_at = $6, completed_at = $7
		WHERE id = $8 AND version = $9
	`, string(instance.Status), instance.CurrentNodeID, stepMemory, context,
		instance.ReferenceDate, instance.UpdatedAt, instance.CompletedAt,
		instance.ID, instance.Version)
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError("Update", instance.ID, err)
	}

	if affected == 0 {
		return persistence.NewInstanceError("Update", instance.ID, persistence.ErrVersionConflict)
	}

	instance.Version++

	return nil
}

func (r *InstanceRepository) ByJourney(ctx context.Context, journeyID string) ([]*models.JourneyInstance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+instanceColumns+` FROM journey_instances
		WHERE journey_id = $1 ORDER BY created_at
	`, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances for journey %s: %w", journeyID, err)
	}
	defer rows.Close()

	instances := []*models.JourneyInstance{}

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}

		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

func marshalInstanceState(instance *models.JourneyInstance) ([]byte, []byte, error) {
	stepMemory, err := json.Marshal(instance.StepMemory)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal step memory: %w", err)
	}

	context, err := json.Marshal(instance.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal context: %w", err)
	}

	return stepMemory, context, nil
}

func scanInstance(row rowScanner) (*models.JourneyInstance, error) {
	var (
		instance   models.JourneyInstance
		status     string
		stepMemory []byte
		context    []byte
	)

	err := row.Scan(&instance.ID, &instance.JourneyID, &instance.SubjectID, &status,
		&instance.CurrentNodeID, &stepMemory, &context, &instance.ReferenceDate,
		&instance.Version, &instance.CreatedAt, &instance.UpdatedAt, &instance.CompletedAt)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatus(status)

	if err := json.Unmarshal(stepMemory, &instance.StepMemory); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step memory for instance %s: %w", instance.ID, err)
	}

	if err := json.Unmarshal(context, &instance.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context for instance %s: %w", instance.ID, err)
	}

	return &instance, nil
}
