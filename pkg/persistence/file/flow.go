package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/google/uuid"
)

const flowsDir = "flows"

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	store *store
}

// Flows returns the flows of owner, or all flows when owner is empty, newest first.
func (r *FlowRepository) Flows(_ context.Context, owner string) ([]*models.Flow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids, err := r.store.ids(flowsDir)
	if err != nil {
		return nil, err
	}

	flows := make([]*models.Flow, 0, len(ids))

	for _, id := range ids {
		var flow models.Flow

		found, err := r.store.read(flowsDir, id, &flow)
		if err != nil {
			return nil, persistence.NewFlowError("Flows", id, err)
		}

		if !found || (owner != "" && flow.Owner != owner) {
			continue
		}

		flows = append(flows, &flow)
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) FlowByID(_ context.Context, id string) (*models.Flow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var flow models.Flow

	found, err := r.store.read(flowsDir, id, &flow)
	if err != nil {
		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	if !found {
		return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
	}

	return &flow, nil
}

// SaveFlow creates or replaces a flow, assigning an id and timestamps when missing.
func (r *FlowRepository) SaveFlow(_ context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.store.write(flowsDir, flow.ID, flow)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) DeleteFlow(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	found, err := r.store.remove(flowsDir, id)
	if err != nil {
		return persistence.NewFlowError("DeleteFlow", id, err)
	}

	if !found {
		return persistence.NewFlowError("DeleteFlow", id, persistence.ErrFlowNotFound)
	}

	return nil
}
