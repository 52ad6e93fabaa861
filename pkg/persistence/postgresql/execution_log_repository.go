package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/vowflow/journey/pkg/models"
)

// ExecutionLogRepository is insert-only; ordering within an instance follows
// the seq column assigned at insert.
type ExecutionLogRepository struct {
	db *sql.DB
}

func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLogEntry) error {
	resultData, err := json.Marshal(entry.ResultData)
	if err != nil {
		return fmt.Errorf("failed to marshal result data for log entry %s: %w", entry.ID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_log (id, instance_id, node_id, node_type, outcome, started_at, duration_ms, result_data, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`, entry.ID, entry.InstanceID, entry.NodeID, string(entry.NodeType), string(entry.Outcome),
		entry.StartedAt, entry.DurationMs, resultData, entry.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to append log entry for instance %s: %w", entry.InstanceID, err)
	}

	return nil
}

func (r *ExecutionLogRepository) ByInstance(ctx context.Context, instanceID string) ([]*models.ExecutionLogEntry, error) {
	return r.query(ctx, `
		SELECT id, instance_id, node_id, node_type, outcome, started_at, duration_ms, result_data, COALESCE(error_message, '')
		FROM execution_log WHERE instance_id = $1 ORDER BY seq
	`, instanceID)
}

func (r *ExecutionLogRepository) ByJourney(ctx context.Context, journeyID string) ([]*models.ExecutionLogEntry, error) {
	return r.query(ctx, `
		SELECT l.id, l.instance_id, l.node_id, l.node_type, l.outcome, l.started_at, l.duration_ms, l.result_data, COALESCE(l.error_message, '')
		FROM execution_log l
		JOIN journey_instances i ON i.id = l.instance_id
		WHERE i.journey_id = $1 ORDER BY l.seq
	`, journeyID)
}

func (r *ExecutionLogRepository) query(ctx context.Context, query string, args ...any) ([]*models.ExecutionLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}
	defer rows.Close()

	entries := []*models.ExecutionLogEntry{}

	for rows.Next() {
		var (
			entry      models.ExecutionLogEntry
			nodeType   string
			outcome    string
			resultData []byte
		)

		err := rows.Scan(&entry.ID, &entry.InstanceID, &entry.NodeID, &nodeType, &outcome,
			&entry.StartedAt, &entry.DurationMs, &resultData, &entry.ErrorMessage)
		if err != nil {
			return nil, err
		}

		entry.NodeType = models.NodeType(nodeType)
		entry.Outcome = models.Outcome(outcome)

		if len(resultData) > 0 {
			if err := json.Unmarshal(resultData, &entry.ResultData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result data for log entry %s: %w", entry.ID, err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
