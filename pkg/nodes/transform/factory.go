package transform

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// TransformNodeFactory creates TransformNode executors.
type TransformNodeFactory struct {
	evaluator Evaluator
}

// NewTransformNodeFactory creates a new factory instance.
func NewTransformNodeFactory(evaluator Evaluator) protocol.NodeFactory {
	return &TransformNodeFactory{evaluator: evaluator}
}

func (f *TransformNodeFactory) Create(ctx context.Context) (protocol.NodeExecutor, error) {
	return NewTransformNode(f.evaluator), nil
}

func (f *TransformNodeFactory) ID() models.NodeType {
	return models.NodeTypeTransform
}

func (f *TransformNodeFactory) Name() string {
	return "Transform"
}

func (f *TransformNodeFactory) Description() string {
	return "Transforms data with a sandboxed JavaScript expression that can read previous node outputs through $"
}

// Schema returns the JSON schema for Transform node configuration.
func (f *TransformNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "JavaScript expression. $ holds node outputs by id; input and loop are globals. The value of the last expression is the output.",
				"examples": []string{
					`$.fetch.result.data.users.map(u => u.email)`,
					`({ total: $.orders.result.data.length, region: input.region })`,
					`loop.item.price * loop.item.quantity`,
				},
			},
			"timeoutMs": map[string]any{
				"type":        "number",
				"description": "Evaluation timeout in milliseconds",
				"default":     5000,
				"minimum":     1,
				"maximum":     60000,
			},
		},
		"required": []string{"expression"},
	}
}
