// Package file provides a file-system persistence implementation. Each entity is a JSON
// document under the root directory; execution logs are JSON lines.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/conduit/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	store         *store
	flowRepo      *FlowRepository
	executionRepo *ExecutionRepository
	connectorRepo *ConnectorRepository
	tableRepo     *TableRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	s := &store{root: cleanRoot}

	return &Persistence{
		root:          cleanRoot,
		store:         s,
		flowRepo:      &FlowRepository{store: s},
		executionRepo: &ExecutionRepository{store: s},
		connectorRepo: &ConnectorRepository{store: s},
		tableRepo:     &TableRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ConnectorRepository() persistence.ConnectorRepository {
	return fp.connectorRepo
}

func (fp *Persistence) TableRepository() persistence.TableRepository {
	return fp.tableRepo
}

// store serializes access to the documents under root.
type store struct {
	root string
	mu   sync.RWMutex
}

// validateID rejects ids that would escape their directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

func (s *store) path(dir, name string) string {
	return filepath.Join(s.root, dir, name)
}

// read decodes dir/id.json into v. It reports false when the document does not exist.
func (s *store) read(dir, id string, v any) (bool, error) {
	err := validateID(id)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(s.path(dir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// write replaces dir/id.json atomically.
func (s *store) write(dir, id string, v any) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Join(s.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", dir, id, err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, dir), id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	_, err = tmp.Write(data)
	closeErr := tmp.Close()

	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	err = os.Rename(tmp.Name(), s.path(dir, id+".json"))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

func (s *store) remove(dir, id string) (bool, error) {
	err := validateID(id)
	if err != nil {
		return false, err
	}

	err = os.Remove(s.path(dir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// ids lists the documents of dir.
func (s *store) ids(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(match), ".json"))
	}

	return ids, nil
}
