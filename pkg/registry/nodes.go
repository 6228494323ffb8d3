// Package registry maps node types to their executors.
package registry

import (
	"github.com/dukex/conduit/pkg/nodes/conditional"
	"github.com/dukex/conduit/pkg/nodes/httprequest"
	"github.com/dukex/conduit/pkg/nodes/loop"
	"github.com/dukex/conduit/pkg/nodes/table"
	"github.com/dukex/conduit/pkg/nodes/transform"
	"github.com/dukex/conduit/pkg/script"
)

// Dependencies are the collaborators of the built-in node executors.
type Dependencies struct {
	Connectors httprequest.ConnectorClient
	Evaluator  *script.Evaluator
	Tables     table.Repository
}

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes(deps Dependencies) {
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = script.NewEvaluator(script.DefaultTimeout)
	}

	r.RegisterNode(httprequest.NewHTTPRequestNodeFactory(deps.Connectors))
	r.RegisterNode(transform.NewTransformNodeFactory(evaluator))
	r.RegisterNode(conditional.NewConditionalNodeFactory(evaluator))
	r.RegisterNode(loop.NewLoopNodeFactory())
	r.RegisterNode(table.NewTableNodeFactory(deps.Tables))
}
