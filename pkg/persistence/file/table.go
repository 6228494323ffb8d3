package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

const tablesDir = "tables"

// TableRepository keeps the rows of each table in one JSON array document.
type TableRepository struct {
	store *store
}

func (r *TableRepository) ReadRows(_ context.Context, tableID string, filter map[string]any) ([]*models.Row, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var rows []*models.Row

	_, err := r.store.read(tablesDir, tableID, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", tableID, err)
	}

	matched := make([]*models.Row, 0, len(rows))

	for _, row := range rows {
		if row.Matches(filter) {
			matched = append(matched, row)
		}
	}

	return matched, nil
}

func (r *TableRepository) WriteRow(_ context.Context, row *models.Row) (*models.Row, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var rows []*models.Row

	_, err := r.store.read(tablesDir, row.TableID, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", row.TableID, err)
	}

	stored := *row
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	replaced := false

	for i, existing := range rows {
		if existing.ID == stored.ID {
			rows[i] = &stored
			replaced = true
		}
	}

	if !replaced {
		rows = append(rows, &stored)
	}

	err = r.store.write(tablesDir, row.TableID, rows)
	if err != nil {
		return nil, fmt.Errorf("failed to write table %s: %w", row.TableID, err)
	}

	return &stored, nil
}
