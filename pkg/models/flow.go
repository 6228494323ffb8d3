// Package models defines the core domain models for flow execution.
package models

import (
	"encoding/json"
	"time"
)

// Reserved scope names. Nodes cannot use them as ids.
const (
	ScopeInput = "input"
	ScopeLoop  = "loop"
)

// Branch labels an edge leaving a condition or loop node.
type Branch string

const (
	BranchNone  Branch = ""
	BranchTrue  Branch = "true"
	BranchFalse Branch = "false"
	BranchBody  Branch = "body" // Edge from a loop node into its body
)

// Node is one step in a flow.
type Node struct {
	ID     string         `json:"id"             validate:"required"`
	Type   NodeType       `json:"type"           validate:"required"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config"`
}

// Edge connects two nodes. Branch is only meaningful when From is a condition or loop node.
type Edge struct {
	ID     string `json:"id,omitempty"`
	From   string `json:"from"             validate:"required"`
	To     string `json:"to"               validate:"required"`
	Branch Branch `json:"branch,omitempty" validate:"omitempty,oneof=true false body"`
}

// Flow is a stored directed graph of nodes and edges.
type Flow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"                  validate:"required,min=1"`
	Owner       string         `json:"owner"`
	Nodes       []*Node        `json:"nodes"                 validate:"dive"`
	Edges       []*Edge        `json:"edges"                 validate:"dive"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Snapshot returns a deep copy of the flow. Executions run against a snapshot so
// edits made while a run is in flight do not affect it.
func (f *Flow) Snapshot() (*Flow, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	var snapshot Flow

	err = json.Unmarshal(data, &snapshot)
	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

// NodeByID returns the node with the given id, or nil.
func (f *Flow) NodeByID(id string) *Node {
	for _, node := range f.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}
