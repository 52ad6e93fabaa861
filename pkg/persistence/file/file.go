// Package file provides file-based persistence for local development and
// tests. All state lives as JSON documents under a root directory; a single
// lock per repository keeps check-then-write sequences atomic.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vowflow/journey/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root          string
	definitions   *DefinitionRepository
	instances     *InstanceRepository
	executionLog  *ExecutionLogRepository
	scheduledWork *ScheduledWorkRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix is tolerated so database URLs can be passed through.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	instances := &InstanceRepository{root: cleanRoot}

	return &Persistence{
		root:          cleanRoot,
		definitions:   &DefinitionRepository{root: cleanRoot},
		instances:     instances,
		executionLog:  &ExecutionLogRepository{root: cleanRoot, instances: instances},
		scheduledWork: &ScheduledWorkRepository{root: cleanRoot},
	}
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

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// shared helpers

func writeDocument(dir, id string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", id, err)
	}

	path := filepath.Join(dir, id+".json")

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

func readDocument(dir, id string, v any) (bool, error) {
	path := filepath.Join(dir, id+".json")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return true, nil
}

func eachDocument(dir string, visit func(data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		if err := visit(data); err != nil {
			return err
		}
	}

	return nil
}

// locked runs fn under mu, a small readability helper for the repositories.
func locked(mu *sync.Mutex, fn func() error) error {
	mu.Lock()
	defer mu.Unlock()

	return fn()
}
