package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/google/uuid"
)

const connectorsDir = "connectors"

// ConnectorRepository handles connector-related file operations.
type ConnectorRepository struct {
	store *store
}

func (r *ConnectorRepository) Connectors(_ context.Context) ([]*models.Connector, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids, err := r.store.ids(connectorsDir)
	if err != nil {
		return nil, err
	}

	connectors := make([]*models.Connector, 0, len(ids))

	for _, id := range ids {
		connector, err := r.load("Connectors", id)
		if err != nil {
			return nil, err
		}

		connectors = append(connectors, connector)
	}

	sort.Slice(connectors, func(i, j int) bool {
		return connectors[i].ID < connectors[j].ID
	})

	return connectors, nil
}

func (r *ConnectorRepository) ConnectorByID(_ context.Context, id string) (*models.Connector, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.load("ConnectorByID", id)
}

func (r *ConnectorRepository) load(op, id string) (*models.Connector, error) {
	var connector models.Connector

	found, err := r.store.read(connectorsDir, id, &connector)
	if err != nil {
		return nil, persistence.NewConnectorError(op, id, err)
	}

	if !found {
		return nil, persistence.NewConnectorError(op, id, persistence.ErrConnectorNotFound)
	}

	return &connector, nil
}

func (r *ConnectorRepository) SaveConnector(_ context.Context, connector *models.Connector) error {
	now := time.Now().UTC()

	if connector.ID == "" {
		connector.ID = uuid.NewString()
	}

	if connector.CreatedAt.IsZero() {
		connector.CreatedAt = now
	}

	connector.UpdatedAt = now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.store.write(connectorsDir, connector.ID, connector)
	if err != nil {
		return persistence.NewConnectorError("SaveConnector", connector.ID, err)
	}

	return nil
}

func (r *ConnectorRepository) UpdateConnectorTokens(_ context.Context, id string, tokens models.Tokens) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	connector, err := r.load("UpdateConnectorTokens", id)
	if err != nil {
		return err
	}

	connector.AuthConfig.Tokens = tokens
	connector.UpdatedAt = time.Now().UTC()

	err = r.store.write(connectorsDir, id, connector)
	if err != nil {
		return persistence.NewConnectorError("UpdateConnectorTokens", id, err)
	}

	return nil
}
