package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// Runner starts and controls executions.
type Runner interface {
	Start(ctx context.Context, flow *models.Flow, input map[string]any) (*models.Execution, <-chan *models.ExecutionResult, error)
	Skip(executionID, nodeID string) error
	Remove(executionID, nodeID string) error
}

type Execution struct {
	persistence persistence.Persistence
	runner      Runner
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, runner Runner, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: persistence,
		runner:      runner,
		logger:      logger.With("module", "execution_service"),
	}
}

// Start checks input against the flow input schema and starts an execution. It returns
// once the execution record exists; the walk continues in the background.
func (e *Execution) Start(ctx context.Context, flowID string, input map[string]any) (*models.Execution, error) {
	flow, err := e.persistence.FlowRepository().FlowByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if input == nil {
		input = map[string]any{}
	}

	err = validateInput(flow.InputSchema, input)
	if err != nil {
		return nil, err
	}

	execution, results, err := e.runner.Start(ctx, flow, input)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("execution_id", execution.ID, "flow_id", flow.ID)

	go func() {
		for result := range results {
			logger.Info("Execution finished", "status", result.Status, "duration_ms", result.DurationMs)
		}
	}()

	return execution, nil
}

func (e *Execution) Get(ctx context.Context, id string) (*models.Execution, error) {
	return e.persistence.ExecutionRepository().ExecutionByID(ctx, id)
}

// Logs returns the log entries of an execution with a sequence greater than after.
func (e *Execution) Logs(ctx context.Context, id string, after int64) ([]*models.ExecutionLog, error) {
	_, err := e.persistence.ExecutionRepository().ExecutionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return e.persistence.ExecutionRepository().Logs(ctx, id, after)
}

func (e *Execution) Skip(_ context.Context, executionID, nodeID string) error {
	return e.runner.Skip(executionID, nodeID)
}

func (e *Execution) Remove(_ context.Context, executionID, nodeID string) error {
	return e.runner.Remove(executionID, nodeID)
}

func validateInput(schema map[string]any, input map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(input))
	if err != nil {
		return NewValidationError("Start", "invalid_input_schema", err.Error(), ErrInvalidInput)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return NewValidationError("Start", "invalid_input",
		fmt.Sprintf("input does not match schema: %s", strings.Join(problems, "; ")), ErrInvalidInput)
}
