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

const connectorColumns = `
	id
  , owner
  , name
  , base_url
  , auth_type
  , auth_config
  , default_headers
  , created_at
  , updated_at
`

// ConnectorRepository handles connector-related database operations.
type ConnectorRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewConnectorRepository(db *sql.DB, logger *slog.Logger) *ConnectorRepository {
	return &ConnectorRepository{db: db, logger: logger}
}

func (r *ConnectorRepository) Connectors(ctx context.Context) ([]*models.Connector, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+connectorColumns+` FROM connectors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query connectors: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	connectors := make([]*models.Connector, 0)

	for rows.Next() {
		connector, err := scanConnector(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connector: %w", err)
		}

		connectors = append(connectors, connector)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating connectors: %w", err)
	}

	return connectors, nil
}

func (r *ConnectorRepository) ConnectorByID(ctx context.Context, id string) (*models.Connector, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectorColumns+` FROM connectors WHERE id = $1`, id)

	connector, err := scanConnector(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewConnectorError("ConnectorByID", id, persistence.ErrConnectorNotFound)
	}

	if err != nil {
		return nil, persistence.NewConnectorError("ConnectorByID", id, err)
	}

	return connector, nil
}

func (r *ConnectorRepository) SaveConnector(ctx context.Context, connector *models.Connector) error {
	now := time.Now().UTC()

	if connector.ID == "" {
		connector.ID = uuid.NewString()
	}

	if connector.CreatedAt.IsZero() {
		connector.CreatedAt = now
	}

	connector.UpdatedAt = now

	authJSON, err := json.Marshal(connector.AuthConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal auth config: %w", err)
	}

	headersJSON, err := json.Marshal(connector.DefaultHeaders)
	if err != nil {
		return fmt.Errorf("failed to marshal default headers: %w", err)
	}

	query := `
		INSERT INTO connectors (id, owner, name, base_url, auth_type, auth_config, default_headers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			base_url = EXCLUDED.base_url,
			auth_type = EXCLUDED.auth_type,
			auth_config = EXCLUDED.auth_config,
			default_headers = EXCLUDED.default_headers,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		connector.ID,
		connector.Owner,
		connector.Name,
		connector.BaseURL,
		string(connector.AuthType),
		string(authJSON),
		nullableJSON(headersJSON),
		connector.CreatedAt,
		connector.UpdatedAt,
	)
	if err != nil {
		return persistence.NewConnectorError("SaveConnector", connector.ID, err)
	}

	return nil
}

// UpdateConnectorTokens replaces the token keys of auth_config and leaves the rest of
// the document untouched.
func (r *ConnectorRepository) UpdateConnectorTokens(ctx context.Context, id string, tokens models.Tokens) error {
	tokensJSON, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	query := `
		UPDATE connectors
		SET auth_config = (auth_config - 'accessToken' - 'refreshToken' - 'tokenType' - 'tokenExpiresAt') || $2::jsonb,
			updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, string(tokensJSON), time.Now().UTC())
	if err != nil {
		return persistence.NewConnectorError("UpdateConnectorTokens", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewConnectorError("UpdateConnectorTokens", id, err)
	}

	if affected == 0 {
		return persistence.NewConnectorError("UpdateConnectorTokens", id, persistence.ErrConnectorNotFound)
	}

	return nil
}

func scanConnector(row scanner) (*models.Connector, error) {
	var (
		connector             models.Connector
		authJSON, headersJSON []byte
	)

	err := row.Scan(
		&connector.ID,
		&connector.Owner,
		&connector.Name,
		&connector.BaseURL,
		&connector.AuthType,
		&authJSON,
		&headersJSON,
		&connector.CreatedAt,
		&connector.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(authJSON, &connector.AuthConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth config: %w", err)
	}

	if len(headersJSON) > 0 {
		err = json.Unmarshal(headersJSON, &connector.DefaultHeaders)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal default headers: %w", err)
		}
	}

	return &connector, nil
}
