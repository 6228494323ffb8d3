// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrConnectorNotFound indicates a connector was not found by the given identifier.
	ErrConnectorNotFound = errors.New("connector not found")

	// ErrInvalidID indicates an identifier that cannot be stored safely.
	ErrInvalidID = errors.New("invalid identifier")
)

// EntityError wraps a repository failure with the operation and the entity it concerned.
type EntityError struct {
	Op     string // Operation being performed (e.g., "FlowByID", "SaveExecution")
	Entity string // Entity kind, e.g. "flow"
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewFlowError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "flow", ID: id, Err: err}
}

func NewExecutionError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "execution", ID: id, Err: err}
}

func NewConnectorError(op, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "connector", ID: id, Err: err}
}

// IsNotFound reports whether err means the requested entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound) || errors.Is(err, ErrExecutionNotFound) || errors.Is(err, ErrConnectorNotFound)
}
