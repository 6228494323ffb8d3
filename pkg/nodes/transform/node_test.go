package transform

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformNode_Execute(t *testing.T) {
	node := NewTransformNode(script.NewEvaluator(time.Second))

	result, err := node.Execute(context.Background(), &models.TransformConfig{
		Expression: "$.fetch.result.data.items.filter(i => i.active).map(i => i.name)",
	}, &protocol.NodeContext{
		Scope: map[string]any{
			"fetch": map[string]any{
				"status": "success",
				"result": map[string]any{
					"data": map[string]any{
						"items": []any{
							map[string]any{"name": "a", "active": true},
							map[string]any{"name": "b", "active": false},
						},
					},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, result.Output)
}

func TestTransformNode_Execute_ScriptError(t *testing.T) {
	node := NewTransformNode(script.NewEvaluator(time.Second))

	_, err := node.Execute(context.Background(), &models.TransformConfig{Expression: "undefinedFn()"}, &protocol.NodeContext{})
	require.Error(t, err)
	assert.True(t, protocol.IsKind(err, protocol.KindScript))
}

func TestTransformNode_Execute_Timeout(t *testing.T) {
	node := NewTransformNode(script.NewEvaluator(time.Minute))

	_, err := node.Execute(context.Background(), &models.TransformConfig{Expression: "for (;;) {}", TimeoutMs: 20}, &protocol.NodeContext{})
	require.Error(t, err)
	assert.True(t, protocol.IsKind(err, protocol.KindScript))
	assert.ErrorIs(t, err, script.ErrTimeout)
}

func TestTransformNodeFactory(t *testing.T) {
	factory := NewTransformNodeFactory(script.NewEvaluator(0))

	executor, err := factory.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.NodeTypeTransform, executor.Type())
	assert.Equal(t, models.NodeTypeTransform, factory.ID())
	assert.Contains(t, factory.Schema()["required"], "expression")
}
