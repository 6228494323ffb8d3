package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

// TableRepository stores user table rows as JSONB documents.
type TableRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTableRepository(db *sql.DB, logger *slog.Logger) *TableRepository {
	return &TableRepository{db: db, logger: logger}
}

// ReadRows matches filter with JSONB containment, oldest rows first.
func (r *TableRepository) ReadRows(ctx context.Context, tableID string, filter map[string]any) ([]*models.Row, error) {
	if filter == nil {
		filter = map[string]any{}
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal filter: %w", err)
	}

	query := `
		SELECT id, table_id, data, created_at
		FROM table_rows
		WHERE table_id = $1 AND data @> $2::jsonb
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, tableID, string(filterJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", tableID, err)
	}
	defer closeRows(ctx, r.logger, rows)

	result := make([]*models.Row, 0)

	for rows.Next() {
		var (
			row      models.Row
			dataJSON []byte
		)

		err := rows.Scan(&row.ID, &row.TableID, &dataJSON, &row.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		err = json.Unmarshal(dataJSON, &row.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal row data: %w", err)
		}

		result = append(result, &row)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

func (r *TableRepository) WriteRow(ctx context.Context, row *models.Row) (*models.Row, error) {
	stored := *row
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	if stored.Data == nil {
		stored.Data = map[string]any{}
	}

	dataJSON, err := json.Marshal(stored.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row data: %w", err)
	}

	query := `
		INSERT INTO table_rows (id, table_id, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`

	_, err = r.db.ExecContext(ctx, query, stored.ID, stored.TableID, string(dataJSON), stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to write row to table %s: %w", stored.TableID, err)
	}

	return &stored, nil
}
