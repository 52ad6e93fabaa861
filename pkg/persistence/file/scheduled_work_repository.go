package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vowflow/journey/pkg/models"
)

// ScheduledWorkRepository stores wakeup pointers as one JSON document per
// work item. ClaimDue removes files under the lock before returning them, so
// a claimed wakeup cannot fire twice.
type ScheduledWorkRepository struct {
	root string
	mu   sync.Mutex
}

func (r *ScheduledWorkRepository) dir() string {
	return filepath.Join(r.root, "scheduled_work")
}

func (r *ScheduledWorkRepository) Save(_ context.Context, work *models.ScheduledWork) error {
	return locked(&r.mu, func() error {
		return writeDocument(r.dir(), work.ID, work)
	})
}

func (r *ScheduledWorkRepository) ClaimDue(_ context.Context, kind models.WorkKind, now time.Time) ([]*models.ScheduledWork, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	due := []*models.ScheduledWork{}

	err := eachDocument(r.dir(), func(data []byte) error {
		var work models.ScheduledWork

		if err := json.Unmarshal(data, &work); err != nil {
			return err
		}

		if work.Kind == kind && !work.DueAt.After(now) {
			due = append(due, &work)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, work := range due {
		if err := os.Remove(filepath.Join(r.dir(), work.ID+".json")); err != nil {
			return nil, err
		}
	}

	return due, nil
}

func (r *ScheduledWorkRepository) DeleteByInstance(_ context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stale := []string{}

	err := eachDocument(r.dir(), func(data []byte) error {
		var work models.ScheduledWork

		if err := json.Unmarshal(data, &work); err != nil {
			return err
		}

		if work.InstanceID == instanceID {
			stale = append(stale, work.ID)
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range stale {
		if err := os.Remove(filepath.Join(r.dir(), id+".json")); err != nil {
			return err
		}
	}

	return nil
}
