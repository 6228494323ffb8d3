// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/conduit/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a transform node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:     "node-" + uuid.New().String()[:8],
		Type:   models.NodeTypeTransform,
		Name:   "Test Node",
		Config: map[string]any{"expression": "1"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = config
	}
}

// WithExpression configures a transform or condition node.
func WithExpression(expression string) func(*models.Node) {
	return func(n *models.Node) {
		n.Config = map[string]any{"expression": expression}
	}
}

// Connect builds an edge, optionally on a branch.
func Connect(from, to string, branch ...models.Branch) *models.Edge {
	edge := &models.Edge{From: from, To: to}
	if len(branch) > 0 {
		edge.Branch = branch[0]
	}

	return edge
}

// CreateTestFlow creates a flow owned by test-user with the given nodes and edges.
func CreateTestFlow(nodes []*models.Node, edges ...*models.Edge) *models.Flow {
	if nodes == nil {
		nodes = []*models.Node{}
	}

	if edges == nil {
		edges = []*models.Edge{}
	}

	return &models.Flow{
		ID:    uuid.New().String(),
		Name:  "Test Flow",
		Owner: "test-user",
		Nodes: nodes,
		Edges: edges,
	}
}

// CreateTestFlowWithNodes creates a flow that doubles input.value and branches on the result.
func CreateTestFlowWithNodes() *models.Flow {
	return CreateTestFlow(
		[]*models.Node{
			CreateTestNode(WithID("double"), WithExpression("input.value * 2")),
			CreateTestNode(WithID("big"), WithType(models.NodeTypeCondition), WithExpression("$.double.result > 10")),
			CreateTestNode(WithID("yes"), WithExpression("'big'")),
			CreateTestNode(WithID("no"), WithExpression("'small'")),
		},
		Connect("double", "big"),
		Connect("big", "yes", models.BranchTrue),
		Connect("big", "no", models.BranchFalse),
	)
}
