package loop

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

type LoopNodeFactory struct{}

func NewLoopNodeFactory() protocol.NodeFactory {
	return &LoopNodeFactory{}
}

func (f *LoopNodeFactory) Create(ctx context.Context) (protocol.NodeExecutor, error) {
	return NewLoopNode(), nil
}

func (f *LoopNodeFactory) ID() models.NodeType {
	return models.NodeTypeLoop
}

func (f *LoopNodeFactory) Name() string {
	return "Loop"
}

func (f *LoopNodeFactory) Description() string {
	return "Runs the nodes connected through its body edges once per item, with loop.item and loop.index bound. Outputs the array of iteration results."
}

func (f *LoopNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"description": "Array to iterate, usually a token such as {{fetch.result.data.items}}",
				"examples":    []any{"{{fetch.result.data.users}}", []any{1, 2, 3}},
			},
		},
		"required": []string{"items"},
	}
}
