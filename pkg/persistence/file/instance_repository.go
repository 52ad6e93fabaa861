package file

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// InstanceRepository stores journey instances. The repository lock makes the
// enrollment check-then-insert and the version-compare-then-write atomic, the
// file backend's equivalent of the SQL partial unique index and conditional
// UPDATE.
type InstanceRepository struct {
	root string
	mu   sync.Mutex
}

func (r *InstanceRepository) dir() string {
	return filepath.Join(r.root, "instances")
}

func (r *InstanceRepository) CreateLive(_ context.Context, instance *models.JourneyInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.findLive(instance.JourneyID, instance.SubjectID)
	if err != nil {
		return err
	}

	if existing != nil {
		return persistence.NewInstanceError("CreateLive", existing.ID, persistence.ErrInstanceExists)
	}

	return writeDocument(r.dir(), instance.ID, instance)
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.JourneyInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.getByID(id)
}

func (r *InstanceRepository) getByID(id string) (*models.JourneyInstance, error) {
	var instance models.JourneyInstance

	found, err := readDocument(r.dir(), id, &instance)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	return &instance, nil
}

func (r *InstanceRepository) FindLive(_ context.Context, journeyID, subjectID string) (*models.JourneyInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, err := r.findLive(journeyID, subjectID)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, persistence.ErrInstanceNotFound
	}

	return instance, nil
}

func (r *InstanceRepository) findLive(journeyID, subjectID string) (*models.JourneyInstance, error) {
	var live *models.JourneyInstance

	err := eachDocument(r.dir(), func(data []byte) error {
		var instance models.JourneyInstance

		if err := json.Unmarshal(data, &instance); err != nil {
			return err
		}

		if instance.JourneyID == journeyID && instance.SubjectID == subjectID && instance.Status.Live() {
			live = &instance
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return live, nil
}

func (r *InstanceRepository) Update(_ context.Context, instance *models.JourneyInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.getByID(instance.ID)
	if err != nil {
		return err
	}

	if stored.Version != instance.Version {
		return persistence.NewInstanceError("Update", instance.ID, persistence.ErrVersionConflict)
	}

	instance.Version++
	instance.UpdatedAt = time.Now().UTC()

	return writeDocument(r.dir(), instance.ID, instance)
}

func (r *InstanceRepository) ByJourney(_ context.Context, journeyID string) ([]*models.JourneyInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.byJourney(journeyID)
}

func (r *InstanceRepository) byJourney(journeyID string) ([]*models.JourneyInstance, error) {
	instances := []*models.JourneyInstance{}

	err := eachDocument(r.dir(), func(data []byte) error {
		var instance models.JourneyInstance

		if err := json.Unmarshal(data, &instance); err != nil {
			return err
		}

		if instance.JourneyID == journeyID {
			instances = append(instances, &instance)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return instances, nil
}
