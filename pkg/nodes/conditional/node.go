// Package conditional provides the condition node executor, which routes execution to
// its true or false branch.
package conditional

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

// ConditionalNode evaluates a boolean expression and selects the matching branch.
type ConditionalNode struct {
	evaluator Evaluator
}

func NewConditionalNode(evaluator Evaluator) *ConditionalNode {
	return &ConditionalNode{evaluator: evaluator}
}

func (n *ConditionalNode) Type() models.NodeType {
	return models.NodeTypeCondition
}

// Execute evaluates the expression. A script failure is ScriptError; a result that is
// not a boolean is ConditionError.
func (n *ConditionalNode) Execute(ctx context.Context, cfg models.NodeConfig, nctx *protocol.NodeContext) (*protocol.Result, error) {
	config, ok := cfg.(*models.ConditionConfig)
	if !ok {
		return nil, protocol.Errorf(protocol.KindConfig, "expected condition config, got %T", cfg)
	}

	value, err := n.evaluator.Evaluate(ctx, config.Expression, nctx.Scope, time.Duration(config.TimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, protocol.NewError(protocol.KindScript, err)
	}

	matched, ok := value.(bool)
	if !ok {
		return nil, protocol.Errorf(protocol.KindCondition, "condition must evaluate to a boolean, got %T", value)
	}

	branch := models.BranchFalse
	if matched {
		branch = models.BranchTrue
	}

	return &protocol.Result{Output: matched, Branch: branch}, nil
}
