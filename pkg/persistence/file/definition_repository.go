package file

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/vowflow/journey/pkg/models"
	"github.com/vowflow/journey/pkg/persistence"
)

// DefinitionRepository stores each journey definition as one JSON document.
type DefinitionRepository struct {
	root string
	mu   sync.Mutex
}

func (r *DefinitionRepository) dir() string {
	return filepath.Join(r.root, "definitions")
}

func (r *DefinitionRepository) Save(_ context.Context, def *models.JourneyDefinition) error {
	return locked(&r.mu, func() error {
		return writeDocument(r.dir(), def.ID, def)
	})
}

func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*models.JourneyDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var def models.JourneyDefinition

	found, err := readDocument(r.dir(), id, &def)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrDefinitionNotFound
	}

	return &def, nil
}

func (r *DefinitionRepository) All(_ context.Context) ([]*models.JourneyDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.list(func(*models.JourneyDefinition) bool { return true })
}

func (r *DefinitionRepository) EnabledByTriggerType(_ context.Context, triggerType models.TriggerType) ([]*models.JourneyDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.list(func(def *models.JourneyDefinition) bool {
		return def.Enabled && def.TriggerType == triggerType
	})
}

func (r *DefinitionRepository) list(keep func(*models.JourneyDefinition) bool) ([]*models.JourneyDefinition, error) {
	defs := []*models.JourneyDefinition{}

	err := eachDocument(r.dir(), func(data []byte) error {
		var def models.JourneyDefinition

		if err := json.Unmarshal(data, &def); err != nil {
			return err
		}

		if keep(&def) {
			defs = append(defs, &def)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return defs, nil
}
