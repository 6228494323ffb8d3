// Package mocks provides testify mocks of the persistence ports and the execution runner.
package mocks

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockFlowRepository is a mock implementation of persistence.FlowRepository interface.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) Flows(ctx context.Context, owner string) ([]*models.Flow, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) FlowByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) SaveFlow(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockFlowRepository) DeleteFlow(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ExecutionsByFlow(ctx context.Context, flowID string) ([]*models.Execution, error) {
	args := m.Called(ctx, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) UpdateNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error {
	args := m.Called(ctx, executionID, nodeID, status)

	return args.Error(0)
}

func (m *MockExecutionRepository) AppendLog(ctx context.Context, entry *models.ExecutionLog) error {
	args := m.Called(ctx, entry)

	return args.Error(0)
}

func (m *MockExecutionRepository) Logs(ctx context.Context, executionID string, after int64) ([]*models.ExecutionLog, error) {
	args := m.Called(ctx, executionID, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionLog), args.Error(1)
}

// MockConnectorRepository is a mock implementation of persistence.ConnectorRepository interface.
type MockConnectorRepository struct {
	mock.Mock
}

func (m *MockConnectorRepository) Connectors(ctx context.Context) ([]*models.Connector, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Connector), args.Error(1)
}

func (m *MockConnectorRepository) ConnectorByID(ctx context.Context, id string) (*models.Connector, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Connector), args.Error(1)
}

func (m *MockConnectorRepository) SaveConnector(ctx context.Context, connector *models.Connector) error {
	args := m.Called(ctx, connector)

	return args.Error(0)
}

func (m *MockConnectorRepository) UpdateConnectorTokens(ctx context.Context, id string, tokens models.Tokens) error {
	args := m.Called(ctx, id, tokens)

	return args.Error(0)
}

// MockTableRepository is a mock implementation of persistence.TableRepository interface.
type MockTableRepository struct {
	mock.Mock
}

func (m *MockTableRepository) ReadRows(ctx context.Context, tableID string, filter map[string]any) ([]*models.Row, error) {
	args := m.Called(ctx, tableID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Row), args.Error(1)
}

func (m *MockTableRepository) WriteRow(ctx context.Context, row *models.Row) (*models.Row, error) {
	args := m.Called(ctx, row)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Row), args.Error(1)
}

type MockPersistence struct {
	mock.Mock

	flowRepo      *MockFlowRepository
	executionRepo *MockExecutionRepository
	connectorRepo *MockConnectorRepository
	tableRepo     *MockTableRepository
}

// NewMockPersistence creates a new MockPersistence with all mock repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		flowRepo:      &MockFlowRepository{},
		executionRepo: &MockExecutionRepository{},
		connectorRepo: &MockConnectorRepository{},
		tableRepo:     &MockTableRepository{},
	}
}

// GetMockFlowRepository returns the underlying mock flow repository for setting up expectations.
func (m *MockPersistence) GetMockFlowRepository() *MockFlowRepository {
	return m.flowRepo
}

func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) GetMockConnectorRepository() *MockConnectorRepository {
	return m.connectorRepo
}

func (m *MockPersistence) GetMockTableRepository() *MockTableRepository {
	return m.tableRepo
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository {
	return m.flowRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) ConnectorRepository() persistence.ConnectorRepository {
	return m.connectorRepo
}

func (m *MockPersistence) TableRepository() persistence.TableRepository {
	return m.tableRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var _ persistence.Persistence = (*MockPersistence)(nil)
