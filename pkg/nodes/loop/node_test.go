package loop

import (
	"context"
	"testing"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopNode_Execute(t *testing.T) {
	result, err := NewLoopNode().Execute(context.Background(), &models.LoopConfig{Items: []any{"a", "b"}}, &protocol.NodeContext{})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, result.Output)
}

func TestLoopNode_Execute_NotASequence(t *testing.T) {
	for _, items := range []any{"{{unresolved}}", float64(3), map[string]any{"a": 1}, []byte("xy")} {
		_, err := NewLoopNode().Execute(context.Background(), &models.LoopConfig{Items: items}, &protocol.NodeContext{})
		require.Error(t, err)
		assert.True(t, protocol.IsKind(err, protocol.KindType))
	}
}

func TestItems(t *testing.T) {
	items, ok := Items([]map[string]any{{"id": 1}, {"id": 2}})
	require.True(t, ok)
	assert.Len(t, items, 2)

	items, ok = Items([2]int{4, 5})
	require.True(t, ok)
	assert.Equal(t, []any{4, 5}, items)

	items, ok = Items([]any{})
	require.True(t, ok)
	assert.Empty(t, items)

	_, ok = Items(nil)
	assert.False(t, ok)
}
