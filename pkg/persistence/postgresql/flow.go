package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/google/uuid"
)

const flowColumns = `
	id
  , name
  , owner
  , nodes
  , edges
  , input_schema
  , created_at
  , updated_at
`

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// Flows returns the flows of owner, or all flows when owner is empty, newest first.
func (r *FlowRepository) Flows(ctx context.Context, owner string) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + `
		FROM flows
		WHERE deleted_at IS NULL AND ($1 = '' OR owner = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + `
		FROM flows
		WHERE id = $1 AND deleted_at IS NULL
	`

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
	}

	if err != nil {
		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return flow, nil
}

// SaveFlow creates or replaces a flow, assigning an id and timestamps when missing.
func (r *FlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	nodesJSON, err := json.Marshal(flow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(flow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	schemaJSON, err := json.Marshal(flow.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal input schema: %w", err)
	}

	query := `
		INSERT INTO flows (id, name, owner, nodes, edges, input_schema, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner = EXCLUDED.owner,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			input_schema = EXCLUDED.input_schema,
			updated_at = EXCLUDED.updated_at,
			deleted_at = NULL
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.Name,
		flow.Owner,
		string(jsonArray(nodesJSON)),
		string(jsonArray(edgesJSON)),
		nullableJSON(schemaJSON),
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

// DeleteFlow soft deletes a flow by setting its deleted_at timestamp.
func (r *FlowRepository) DeleteFlow(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE flows SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL", id, time.Now().UTC())
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
	}

	return nil
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow                    models.Flow
		nodes, edges, inputJSON []byte
	)

	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&flow.Owner,
		&nodes,
		&edges,
		&inputJSON,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(nodes, &flow.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edges, &flow.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if len(inputJSON) > 0 {
		err = json.Unmarshal(inputJSON, &flow.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input schema: %w", err)
		}
	}

	return &flow, nil
}

// jsonArray maps a JSON null to an empty array.
func jsonArray(data []byte) []byte {
	if string(data) == "null" {
		return []byte("[]")
	}

	return data
}
