package models

import "time"

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// NodeStatus is the state of one node inside an execution.
type NodeStatus string

const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether the node will not change status again.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusSuccess || s == NodeStatusError || s == NodeStatusSkipped
}

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// Execution is the persisted record of one flow run.
type Execution struct {
	ID           string                `json:"id"`
	FlowID       string                `json:"flowId"`
	Owner        string                `json:"owner"`
	Status       ExecutionStatus       `json:"status"`
	StartedAt    time.Time             `json:"startedAt"`
	FinishedAt   *time.Time            `json:"finishedAt,omitempty"`
	DurationMs   int64                 `json:"durationMs"`
	Input        map[string]any        `json:"input,omitempty"`
	Output       map[string]any        `json:"output,omitempty"`
	NodeStatuses map[string]NodeStatus `json:"nodeStatuses,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// ExecutionLog is an append-only log entry of an execution. Sequence orders entries
// within one execution.
type ExecutionLog struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"executionId"`
	NodeID      string    `json:"nodeId,omitempty"`
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	Level       LogLevel  `json:"level"`
	Message     string    `json:"message"`
	Data        any       `json:"data,omitempty"`
}

// NodeState is the walker's view of a node during a run.
type NodeState struct {
	Status     NodeStatus `json:"status"`
	Output     any        `json:"output,omitempty"`
	Error      error      `json:"-"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Runs       int        `json:"runs"`
}

// ExecutionResult is returned once an execution reaches a terminal status.
type ExecutionResult struct {
	ExecutionID  string                `json:"executionId"`
	Status       ExecutionStatus       `json:"status"`
	Output       map[string]any        `json:"output"`
	NodeStatuses map[string]NodeStatus `json:"nodeStatuses"`
	DurationMs   int64                 `json:"durationMs"`
	Error        string                `json:"error,omitempty"`
}
