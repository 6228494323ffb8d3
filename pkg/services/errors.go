// Package services provides the use cases behind the API: storing and validating flows,
// starting and controlling executions, and operating connectors.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidInput      = errors.New("input does not match the flow input schema")
	ErrConnectorRequired = errors.New("connectorId or connector is required")
	ErrNotOAuth2         = errors.New("connector does not use oauth2")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConnectorRequired) ||
		errors.Is(err, ErrNotOAuth2) ||
		errors.Is(err, engine.ErrInvalidGraph) ||
		errors.Is(err, engine.ErrNodeNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, engine.ErrExecutionNotRunning) ||
		errors.Is(err, engine.ErrNodeNotPending)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
