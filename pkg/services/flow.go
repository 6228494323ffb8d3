package services

import (
	"context"
	"fmt"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

// GraphValidator checks that a flow can be executed.
type GraphValidator interface {
	Validate(flow *models.Flow) error
}

type Flow struct {
	persistence persistence.Persistence
	graph       GraphValidator
	validate    *validator.Validate
}

// NewFlow creates a new flow service.
func NewFlow(persistence persistence.Persistence, graph GraphValidator) *Flow {
	return &Flow{
		persistence: persistence,
		graph:       graph,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create validates the flow, including its graph, and stores it.
func (f *Flow) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, NewValidationError("Create", "flow_required", "flow is required", ErrInvalidRequest)
	}

	err := f.validate.Struct(flow)
	if err != nil {
		return nil, NewValidationError("Create", "invalid_flow", err.Error(), ErrInvalidRequest)
	}

	if flow.InputSchema != nil {
		_, err = gojsonschema.NewSchema(gojsonschema.NewGoLoader(flow.InputSchema))
		if err != nil {
			return nil, NewValidationError("Create", "invalid_input_schema", err.Error(), ErrInvalidRequest)
		}
	}

	err = f.graph.Validate(flow)
	if err != nil {
		return nil, err
	}

	err = f.persistence.FlowRepository().SaveFlow(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

func (f *Flow) Get(ctx context.Context, id string) (*models.Flow, error) {
	return f.persistence.FlowRepository().FlowByID(ctx, id)
}

// List returns the flows of owner, or every flow when owner is empty.
func (f *Flow) List(ctx context.Context, owner string) ([]*models.Flow, error) {
	return f.persistence.FlowRepository().Flows(ctx, owner)
}

func (f *Flow) Delete(ctx context.Context, id string) error {
	return f.persistence.FlowRepository().DeleteFlow(ctx, id)
}

// Executions lists the executions of a flow, most recent first.
func (f *Flow) Executions(ctx context.Context, flowID string) ([]*models.Execution, error) {
	_, err := f.persistence.FlowRepository().FlowByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	return f.persistence.ExecutionRepository().ExecutionsByFlow(ctx, flowID)
}
