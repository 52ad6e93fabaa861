package file

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/vowflow/journey/pkg/models"
)

// ExecutionLogRepository appends node execution attempts to one JSON document
// per instance. Entries keep their append order; nothing rewrites them.
type ExecutionLogRepository struct {
	root      string
	instances *InstanceRepository
	mu        sync.Mutex
}

func (r *ExecutionLogRepository) dir() string {
	return filepath.Join(r.root, "execution_log")
}

func (r *ExecutionLogRepository) Append(_ context.Context, entry *models.ExecutionLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.read(entry.InstanceID)
	if err != nil {
		return err
	}

	entries = append(entries, entry)

	return writeDocument(r.dir(), entry.InstanceID, entries)
}

func (r *ExecutionLogRepository) ByInstance(_ context.Context, instanceID string) ([]*models.ExecutionLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.read(instanceID)
}

func (r *ExecutionLogRepository) ByJourney(ctx context.Context, journeyID string) ([]*models.ExecutionLogEntry, error) {
	instances, err := r.instances.ByJourney(ctx, journeyID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []*models.ExecutionLogEntry{}

	for _, instance := range instances {
		instanceEntries, err := r.read(instance.ID)
		if err != nil {
			return nil, err
		}

		entries = append(entries, instanceEntries...)
	}

	return entries, nil
}

func (r *ExecutionLogRepository) read(instanceID string) ([]*models.ExecutionLogEntry, error) {
	entries := []*models.ExecutionLogEntry{}

	found, err := readDocument(r.dir(), instanceID, &entries)
	if err != nil {
		return nil, err
	}

	if !found {
		return []*models.ExecutionLogEntry{}, nil
	}

	return entries, nil
}
