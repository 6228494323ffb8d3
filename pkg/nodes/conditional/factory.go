package conditional

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// ConditionalNodeFactory creates ConditionalNode executors.
type ConditionalNodeFactory struct {
	evaluator Evaluator
}

func NewConditionalNodeFactory(evaluator Evaluator) protocol.NodeFactory {
	return &ConditionalNodeFactory{evaluator: evaluator}
}

func (f *ConditionalNodeFactory) Create(ctx context.Context) (protocol.NodeExecutor, error) {
	return NewConditionalNode(f.evaluator), nil
}

func (f *ConditionalNodeFactory) ID() models.NodeType {
	return models.NodeTypeCondition
}

func (f *ConditionalNodeFactory) Name() string {
	return "Condition"
}

func (f *ConditionalNodeFactory) Description() string {
	return "Evaluates a boolean expression and continues on the edges labelled true or false. Nodes only reachable through the other branch are skipped."
}

// Schema returns the JSON schema for Condition node configuration.
func (f *ConditionalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "JavaScript expression that must evaluate to true or false",
				"examples": []string{
					`$.fetch.result.status === 200`,
					`input.amount > 1000 && input.currency === "EUR"`,
				},
			},
			"timeoutMs": map[string]any{
				"type":    "number",
				"default": 5000,
				"minimum": 1,
				"maximum": 60000,
			},
		},
		"required": []string{"expression"},
	}
}
