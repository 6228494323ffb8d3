package services_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/mocks"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/services"
	"github.com/dukex/conduit/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExecution_Start(t *testing.T) {
	ctx := context.Background()

	schema := map[string]any{
		"type":       "object",
		"required":   []any{"value"},
		"properties": map[string]any{"value": map[string]any{"type": "number"}},
	}

	tests := []struct {
		name        string
		input       map[string]any
		expectStart bool
	}{
		{name: "valid input", input: map[string]any{"value": 3}, expectStart: true},
		{name: "missing field", input: map[string]any{}, expectStart: false},
		{name: "wrong type", input: map[string]any{"value": "three"}, expectStart: false},
		{name: "nil input", input: nil, expectStart: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mocks.NewMockPersistence()
			runner := &mocks.MockRunner{}

			flow := testutil.CreateTestFlowWithNodes()
			flow.InputSchema = schema

			p.GetMockFlowRepository().On("FlowByID", ctx, flow.ID).Return(flow, nil)
			runner.On("Start", ctx, flow, mock.Anything).
				Return(&models.Execution{ID: "exec-1", FlowID: flow.ID, Status: models.ExecutionStatusRunning}, nil)

			execution, err := services.NewExecution(p, runner, slog.Default()).Start(ctx, flow.ID, tt.input)

			if tt.expectStart {
				require.NoError(t, err)
				assert.Equal(t, "exec-1", execution.ID)
				runner.AssertExpectations(t)

				return
			}

			require.Error(t, err)
			require.ErrorIs(t, err, services.ErrInvalidInput)
			assert.True(t, services.IsValidationError(err))
			runner.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExecution_StartWithoutSchema(t *testing.T) {
	ctx := context.Background()

	p := mocks.NewMockPersistence()
	runner := &mocks.MockRunner{}
	flow := testutil.CreateTestFlowWithNodes()

	p.GetMockFlowRepository().On("FlowByID", ctx, flow.ID).Return(flow, nil)
	runner.On("Start", ctx, flow, map[string]any{}).Return(&models.Execution{ID: "exec-1"}, nil)

	_, err := services.NewExecution(p, runner, slog.Default()).Start(ctx, flow.ID, nil)
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestExecution_StartMissingFlow(t *testing.T) {
	ctx := context.Background()

	p := mocks.NewMockPersistence()
	runner := &mocks.MockRunner{}

	p.GetMockFlowRepository().On("FlowByID", ctx, "missing").Return(nil, persistence.ErrFlowNotFound)

	_, err := services.NewExecution(p, runner, slog.Default()).Start(ctx, "missing", nil)
	require.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestExecution_Logs(t *testing.T) {
	ctx := context.Background()

	t.Run("returns entries after the cursor", func(t *testing.T) {
		p := mocks.NewMockPersistence()
		logs := []*models.ExecutionLog{{ExecutionID: "exec-1", Sequence: 3}}

		p.GetMockExecutionRepository().On("ExecutionByID", ctx, "exec-1").Return(&models.Execution{ID: "exec-1"}, nil)
		p.GetMockExecutionRepository().On("Logs", ctx, "exec-1", int64(2)).Return(logs, nil)

		result, err := services.NewExecution(p, &mocks.MockRunner{}, slog.Default()).Logs(ctx, "exec-1", 2)
		require.NoError(t, err)
		assert.Equal(t, logs, result)
	})

	t.Run("unknown execution", func(t *testing.T) {
		p := mocks.NewMockPersistence()

		p.GetMockExecutionRepository().On("ExecutionByID", ctx, "missing").
			Return(nil, persistence.NewExecutionError("ExecutionByID", "missing", persistence.ErrExecutionNotFound))

		_, err := services.NewExecution(p, &mocks.MockRunner{}, slog.Default()).Logs(ctx, "missing", 0)
		require.ErrorIs(t, err, persistence.ErrExecutionNotFound)
		p.GetMockExecutionRepository().AssertNotCalled(t, "Logs", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestExecution_Control(t *testing.T) {
	ctx := context.Background()

	runner := &mocks.MockRunner{}
	runner.On("Skip", "exec-1", "yes").Return(nil)
	runner.On("Remove", "exec-1", "double").Return(engine.ErrNodeNotPending)
	runner.On("Skip", "gone", "yes").Return(engine.ErrExecutionNotRunning)

	svc := services.NewExecution(mocks.NewMockPersistence(), runner, slog.Default())

	require.NoError(t, svc.Skip(ctx, "exec-1", "yes"))

	err := svc.Remove(ctx, "exec-1", "double")
	assert.True(t, services.IsConflictError(err))

	err = svc.Skip(ctx, "gone", "yes")
	assert.True(t, services.IsConflictError(err))

	runner.AssertExpectations(t)
}
