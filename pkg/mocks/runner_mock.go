package mocks

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockRunner mocks the engine as seen by the execution service. Start returns the
// execution set up with On and a closed result channel.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Start(ctx context.Context, flow *models.Flow, input map[string]any) (*models.Execution, <-chan *models.ExecutionResult, error) {
	args := m.Called(ctx, flow, input)

	results := make(chan *models.ExecutionResult)
	close(results)

	if args.Get(0) == nil {
		return nil, nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), results, args.Error(1)
}

func (m *MockRunner) Skip(executionID, nodeID string) error {
	args := m.Called(executionID, nodeID)

	return args.Error(0)
}

func (m *MockRunner) Remove(executionID, nodeID string) error {
	args := m.Called(executionID, nodeID)

	return args.Error(0)
}

// MockGraphValidator mocks the flow graph check.
type MockGraphValidator struct {
	mock.Mock
}

func (m *MockGraphValidator) Validate(flow *models.Flow) error {
	args := m.Called(flow)

	return args.Error(0)
}
