package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vowflow/journey/pkg/models"
)

// ScheduledWorkRepository stores wakeup pointers. ClaimDue uses
// DELETE ... RETURNING so concurrent scheduler passes never hand out the same
// row twice.
type ScheduledWorkRepository struct {
	db *sql.DB
}

func (r *ScheduledWorkRepository) Save(ctx context.Context, work *models.ScheduledWork) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scheduled_work (id, instance_id, node_id, kind, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, work.ID, work.InstanceID, work.NodeID, string(work.Kind), work.DueAt, work.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save scheduled work for instance %s: %w", work.InstanceID, err)
	}

	return nil
}

func (r *ScheduledWorkRepository) ClaimDue(ctx context.Context, kind models.WorkKind, now time.Time) ([]*models.ScheduledWork, error) {
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM scheduled_work
		WHERE kind = $1 AND due_at <= $2
		RETURNING id, instance_id, node_id, kind, due_at, created_at
	`, string(kind), now)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due work: %w", err)
	}
	defer rows.Close()

	claimed := []*models.ScheduledWork{}

	for rows.Next() {
		var (
			work     models.ScheduledWork
			workKind string
		)

		err := rows.Scan(&work.ID, &work.InstanceID, &work.NodeID, &workKind, &work.DueAt, &work.CreatedAt)
		if err != nil {
			return nil, err
		}

		work.Kind = models.WorkKind(workKind)
		claimed = append(claimed, &work)
	}

	return claimed, rows.Err()
}

func (r *ScheduledWorkRepository) DeleteByInstance(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_work WHERE instance_id = $1", instanceID)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled work for instance %s: %w", instanceID, err)
	}

	return nil
}
