// Package persistence defines the storage ports of the engine and its API.
package persistence

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
)

// FlowRepository stores flow definitions.
type FlowRepository interface {
	Flows(ctx context.Context, owner string) ([]*models.Flow, error)
	FlowByID(ctx context.Context, id string) (*models.Flow, error)
	SaveFlow(ctx context.Context, flow *models.Flow) error
	DeleteFlow(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records and their append-only logs.
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	ExecutionByID(ctx context.Context, id string) (*models.Execution, error)
	ExecutionsByFlow(ctx context.Context, flowID string) ([]*models.Execution, error)
	UpdateNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error

	AppendLog(ctx context.Context, entry *models.ExecutionLog) error
	// Logs returns the entries of an execution with a sequence greater than after, in order.
	Logs(ctx context.Context, executionID string, after int64) ([]*models.ExecutionLog, error)
}

// ConnectorRepository stores connectors and their cached OAuth2 tokens.
type ConnectorRepository interface {
	Connectors(ctx context.Context) ([]*models.Connector, error)
	ConnectorByID(ctx context.Context, id string) (*models.Connector, error)
	SaveConnector(ctx context.Context, connector *models.Connector) error
	// UpdateConnectorTokens overwrites only the token fields; the last write wins.
	UpdateConnectorTokens(ctx context.Context, id string, tokens models.Tokens) error
}

// TableRepository stores the rows of user tables.
type TableRepository interface {
	// ReadRows returns rows of tableID whose data contains every filter key with an equal value.
	ReadRows(ctx context.Context, tableID string, filter map[string]any) ([]*models.Row, error)
	WriteRow(ctx context.Context, row *models.Row) (*models.Row, error)
}

type Persistence interface {
	FlowRepository() FlowRepository
	ExecutionRepository() ExecutionRepository
	ConnectorRepository() ConnectorRepository
	TableRepository() TableRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
