// Package loop provides the loop node executor. The executor resolves and validates the
// item sequence; iterating the loop body is done by the engine.
package loop

import (
	"context"
	"reflect"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// LoopNode validates that its items resolve to a sequence.
type LoopNode struct{}

func NewLoopNode() *LoopNode {
	return &LoopNode{}
}

func (n *LoopNode) Type() models.NodeType {
	return models.NodeTypeLoop
}

// Execute returns the items as []any. Anything other than an array is TypeError.
func (n *LoopNode) Execute(_ context.Context, cfg models.NodeConfig, _ *protocol.NodeContext) (*protocol.Result, error) {
	config, ok := cfg.(*models.LoopConfig)
	if !ok {
		return nil, protocol.Errorf(protocol.KindConfig, "expected loop config, got %T", cfg)
	}

	items, ok := Items(config.Items)
	if !ok {
		return nil, protocol.Errorf(protocol.KindType, "loop items must be an array, got %T", config.Items)
	}

	return &protocol.Result{Output: items}, nil
}

// Items converts any slice or array value to []any.
func Items(value any) ([]any, bool) {
	if items, ok := value.([]any); ok {
		return items, true
	}

	if value == nil {
		return nil, false
	}

	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}

	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	items := make([]any, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}

	return items, true
}
