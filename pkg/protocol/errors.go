package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a node failure.
type ErrorKind string

const (
	KindHTTP      ErrorKind = "HttpError"
	KindAuth      ErrorKind = "AuthError"
	KindScript    ErrorKind = "ScriptError"
	KindCondition ErrorKind = "ConditionError"
	KindType      ErrorKind = "TypeError"
	KindGraph     ErrorKind = "GraphError"
	KindConfig    ErrorKind = "ConfigError"
	KindTable     ErrorKind = "TableError"
	KindLoop      ErrorKind = "LoopError"
)

// ExecutionError is the error returned by node executors.
type ExecutionError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	Body       any
	// Output is partial output attached to the failure, e.g. the completed iterations of a loop.
	Output any
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.HTTPStatus)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Data returns the structured detail attached to the error log of a failed node.
func (e *ExecutionError) Data() map[string]any {
	data := map[string]any{
		"kind":    string(e.Kind),
		"message": e.Message,
	}

	if e.HTTPStatus != 0 {
		data["status"] = e.HTTPStatus
	}

	if e.Body != nil {
		data["body"] = e.Body
	}

	return data
}

// NewError builds an ExecutionError wrapping err.
func NewError(kind ErrorKind, err error) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: err.Error(), Err: err}
}

// Errorf builds an ExecutionError with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsExecutionError converts any error into an ExecutionError. Errors that are not
// already classified get fallback as their kind.
func AsExecutionError(err error, fallback ErrorKind) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	return NewError(fallback, err)
}

// KindOf returns the kind of err, or "" when err is not an ExecutionError.
func KindOf(err error) ErrorKind {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind
	}

	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
