// Package script evaluates user JavaScript expressions in an isolated goja runtime.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const DefaultTimeout = 5 * time.Second

var (
	ErrTimeout     = errors.New("script timed out")
	ErrInterrupted = errors.New("script interrupted")
)

// Error is a JavaScript exception or compile failure.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Evaluator runs expressions. Each call gets a fresh runtime so no state leaks between
// nodes or executions.
type Evaluator struct {
	timeout time.Duration
}

func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Evaluator{timeout: timeout}
}

// Evaluate runs expression with scope bound to "$" and the "input" and "loop" entries of
// scope bound as globals. Single expressions and statement blocks ending in an
// expression are accepted; the value of the last expression is returned. The result is
// normalised to JSON values: numbers are float64, objects map[string]any and arrays []any.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, scope map[string]any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}

	bound, err := json.Marshal(scope)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("failed to bind scope: %v", err), Err: err}
	}

	vm := goja.New()

	_, err = vm.RunString(fmt.Sprintf("var $ = %s || {};\nvar input = $.input;\nvar loop = $.loop;\n", bound))
	if err != nil {
		return nil, wrapError(err)
	}

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt(ErrTimeout)
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ErrInterrupted)
	})
	defer stop()

	value, err := vm.RunString(strings.TrimSpace(expression))
	if err != nil {
		return nil, wrapError(err)
	}

	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}

	result, err := toJSONValue(value.Export())
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("result is not serialisable: %v", err), Err: err}
	}

	return result, nil
}

func wrapError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return &Error{Message: cause.Error(), Err: cause}
		}

		return &Error{Message: interrupted.String(), Err: ErrInterrupted}
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return &Error{Message: exception.Value().String(), Err: err}
	}

	return &Error{Message: err.Error(), Err: err}
}

func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any

	err = json.Unmarshal(data, &out)
	if err != nil {
		return nil, err
	}

	return out, nil
}
