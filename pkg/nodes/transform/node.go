// Package transform provides the transform node executor.
package transform

import (
	"context"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// Evaluator runs JavaScript expressions against a scope.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, scope map[string]any, timeout time.Duration) (any, error)
}

// TransformNode evaluates a JavaScript expression and outputs its value.
type TransformNode struct {
	evaluator Evaluator
}

func NewTransformNode(evaluator Evaluator) *TransformNode {
	return &TransformNode{evaluator: evaluator}
}

func (n *TransformNode) Type() models.NodeType {
	return models.NodeTypeTransform
}

// Execute evaluates the expression with the run scope bound to $. Exceptions and
// timeouts are ScriptError.
func (n *TransformNode) Execute(ctx context.Context, cfg models.NodeConfig, nctx *protocol.NodeContext) (*protocol.Result, error) {
	config, ok := cfg.(*models.TransformConfig)
	if !ok {
		return nil, protocol.Errorf(protocol.KindConfig, "expected transform config, got %T", cfg)
	}

	value, err := n.evaluator.Evaluate(ctx, config.Expression, nctx.Scope, time.Duration(config.TimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, protocol.NewError(protocol.KindScript, err)
	}

	return &protocol.Result{Output: value}, nil
}
