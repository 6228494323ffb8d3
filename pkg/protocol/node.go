// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/conduit/pkg/models"
)

// NodeFactory creates node executors and provides metadata about the node type.
type NodeFactory interface {
	// Create creates the executor for this node type
	Create(ctx context.Context) (NodeExecutor, error)

	// ID returns the node type this factory serves
	ID() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// NodeExecutor runs one node type. Executors are stateless; the resolved config and
// context of a single invocation are passed to Execute. On failure Execute may still
// return a Result whose Logs are recorded before the error.
type NodeExecutor interface {
	Type() models.NodeType
	Execute(ctx context.Context, cfg models.NodeConfig, nctx *NodeContext) (*Result, error)
}

// NodeContext carries the invocation context of a node.
type NodeContext struct {
	ExecutionID string
	FlowID      string
	Owner       string
	NodeID      string

	// Scope holds prior node outputs under their ids plus "input" and, inside a loop body, "loop".
	Scope map[string]any

	Logger *slog.Logger
}

// Input returns the run input from the scope.
func (n *NodeContext) Input() any {
	return n.Scope[models.ScopeInput]
}

// Loop returns the current loop binding, or nil outside a loop body.
func (n *NodeContext) Loop() any {
	return n.Scope[models.ScopeLoop]
}

// LogEntry is a log line emitted by an executor. The walker appends it to the execution log.
type LogEntry struct {
	Level   models.LogLevel
	Message string
	Data    any
}

// Result is the outcome of a successful node invocation.
type Result struct {
	Output any
	// Branch selects the outgoing edges of a condition node.
	Branch models.Branch
	Logs   []LogEntry
}

// Log appends an entry to the result.
func (r *Result) Log(level models.LogLevel, message string, data any) {
	r.Logs = append(r.Logs, LogEntry{Level: level, Message: message, Data: data})
}
