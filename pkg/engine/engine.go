// Package engine executes flows: it validates the node graph, walks it in dependency
// order one node at a time, and reports logs and status transitions to a sink.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrExecutionNotRunning is returned by control signals for unknown or finished executions.
	ErrExecutionNotRunning = errors.New("execution is not running")

	// ErrNodeNotFound is returned by control signals naming a node outside the flow.
	ErrNodeNotFound = errors.New("node not found in execution")

	// ErrNodeNotPending is returned by control signals for nodes that already started.
	ErrNodeNotPending = errors.New("node already started")
)

// Registry resolves node types to executors.
type Registry interface {
	IsRegistered(nodeType models.NodeType) bool
	Executor(ctx context.Context, nodeType models.NodeType) (protocol.NodeExecutor, error)
}

// Sink receives the logs and status transitions of executions. Calls for one execution
// are made from a single goroutine in emission order.
type Sink interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error
	SetStatus(ctx context.Context, execution *models.Execution) error
	SetNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error
}

type Option func(*Engine)

// WithExecutionTimeout bounds the duration of every execution. Nodes still pending when
// it expires are skipped and the execution fails.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

type Engine struct {
	registry Registry
	sink     Sink
	logger   *slog.Logger
	tracer   trace.Tracer
	timeout  time.Duration
	now      func() time.Time

	mu   sync.Mutex
	runs map[string]*run
}

func New(registry Registry, sink Sink, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		sink:     sink,
		logger:   slog.Default(),
		tracer:   otelhelper.Tracer("conduit/engine"),
		now:      time.Now,
		runs:     make(map[string]*run),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sink == nil {
		e.sink = nopSink{}
	}

	e.logger = e.logger.With("module", "engine")

	return e
}

// Validate reports the GraphError Execute would return for flow, without running it.
func (e *Engine) Validate(flow *models.Flow) error {
	if flow == nil {
		return &GraphError{Message: "flow is required"}
	}

	_, err := buildGraph(flow, e.registry.IsRegistered)

	return err
}

// Execute runs flow synchronously. Only a GraphError or a failure to record the execution
// is returned as error; node failures are reported through the result status.
func (e *Engine) Execute(ctx context.Context, flow *models.Flow, input map[string]any) (*models.ExecutionResult, error) {
	r, err := e.prepare(ctx, flow, input)
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, r), nil
}

// Start validates flow, records a running execution and walks the graph in the background.
// The walk is detached from ctx cancellation. The channel delivers the result and is closed.
func (e *Engine) Start(ctx context.Context, flow *models.Flow, input map[string]any) (*models.Execution, <-chan *models.ExecutionResult, error) {
	r, err := e.prepare(ctx, flow, input)
	if err != nil {
		return nil, nil, err
	}

	results := make(chan *models.ExecutionResult, 1)
	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(results)

		results <- e.execute(runCtx, r)
	}()

	return r.executionCopy(), results, nil
}

// Skip forces a node that has not started yet to end as skipped. It takes effect when the
// node is next scheduled.
func (e *Engine) Skip(executionID, nodeID string) error {
	return e.control(executionID, nodeID, func(r *run) {
		r.skipped[nodeID] = true
	})
}

// Remove takes a node that has not started yet out of the run. The node ends as skipped
// and its outgoing edges are dropped, so successors no longer wait for it.
func (e *Engine) Remove(executionID, nodeID string) error {
	return e.control(executionID, nodeID, func(r *run) {
		r.removed[nodeID] = true
	})
}

// Running reports whether executionID is in flight in this engine.
func (e *Engine) Running(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.runs[executionID]

	return ok
}

// NodeStates returns a copy of the live node states of a running execution.
func (e *Engine) NodeStates(executionID string) (map[string]models.NodeState, error) {
	e.mu.Lock()
	r, ok := e.runs[executionID]
	e.mu.Unlock()

	if !ok {
		return nil, ErrExecutionNotRunning
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]models.NodeState, len(r.states))
	for id, state := range r.states {
		states[id] = *state
	}

	return states, nil
}

func (e *Engine) control(executionID, nodeID string, apply func(r *run)) error {
	e.mu.Lock()
	r, ok := e.runs[executionID]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotRunning, executionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	if state.Status != models.NodeStatusPending {
		return fmt.Errorf("%w: %s is %s", ErrNodeNotPending, nodeID, state.Status)
	}

	apply(r)

	return nil
}

func (e *Engine) prepare(ctx context.Context, flow *models.Flow, input map[string]any) (*run, error) {
	if flow == nil {
		return nil, &GraphError{Message: "flow is required"}
	}

	snapshot, err := flow.Snapshot()
	if err != nil {
		return nil, &GraphError{Message: "flow cannot be copied", Err: err}
	}

	g, err := buildGraph(snapshot, e.registry.IsRegistered)
	if err != nil {
		return nil, err
	}

	if input == nil {
		input = map[string]any{}
	}

	r := newRun(e, snapshot, g, input)

	err = e.sink.SetStatus(ctx, r.executionCopy())
	if err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	e.mu.Lock()
	e.runs[r.execution.ID] = r
	e.mu.Unlock()

	return r, nil
}

func (e *Engine) execute(ctx context.Context, r *run) *models.ExecutionResult {
	defer func() {
		e.mu.Lock()
		delete(e.runs, r.execution.ID)
		e.mu.Unlock()
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "flow.execute",
		attribute.String(otelhelper.ExecutionIDKey, r.execution.ID),
		attribute.String(otelhelper.FlowIDKey, r.flow.ID),
		attribute.String(otelhelper.FlowNameKey, r.flow.Name),
	)
	defer span.End()

	ctx = log.WithLogger(ctx, r.logger)

	r.logger.Info("Execution started", "nodes", len(r.flow.Nodes))

	return r.execute(ctx, span)
}

func newID() string {
	return uuid.NewString()
}

type nopSink struct{}

func (nopSink) Append(context.Context, *models.ExecutionLog) error { return nil }

func (nopSink) SetStatus(context.Context, *models.Execution) error { return nil }

func (nopSink) SetNodeStatus(context.Context, string, string, models.NodeStatus) error { return nil }
