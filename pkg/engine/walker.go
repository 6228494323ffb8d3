package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/conduit/pkg/interpolate"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type edgeState int

const (
	edgeUnresolved edgeState = iota
	edgeLive
	edgeInactive
	edgePoisoned
	edgeDropped
)

// run is the state of one execution. The walk itself runs on a single goroutine; mu
// guards what control signals read and write.
type run struct {
	engine    *Engine
	flow      *models.Flow
	graph     *graph
	execution *models.Execution
	logger    *slog.Logger
	sequence  int64

	// failed records nodes that ended in error at least once, across loop iterations.
	failed map[string]bool
	// sinkCtx outlives cancellation of the walk so the final records are still written.
	sinkCtx context.Context

	mu      sync.Mutex
	states  map[string]*models.NodeState
	skipped map[string]bool
	removed map[string]bool
}

func newRun(e *Engine, flow *models.Flow, g *graph, input map[string]any) *run {
	statuses := make(map[string]models.NodeStatus, len(flow.Nodes))
	states := make(map[string]*models.NodeState, len(flow.Nodes))

	for _, node := range g.nodes {
		statuses[node.ID] = models.NodeStatusPending
		states[node.ID] = &models.NodeState{Status: models.NodeStatusPending}
	}

	execution := &models.Execution{
		ID:           newID(),
		FlowID:       flow.ID,
		Owner:        flow.Owner,
		Status:       models.ExecutionStatusRunning,
		StartedAt:    e.now().UTC(),
		Input:        input,
		NodeStatuses: statuses,
	}

	return &run{
		engine:    e,
		flow:      flow,
		graph:     g,
		execution: execution,
		logger:    e.logger.With("execution_id", execution.ID, "flow_id", flow.ID),
		failed:    make(map[string]bool),
		states:    states,
		skipped:   make(map[string]bool),
		removed:   make(map[string]bool),
	}
}

func (r *run) executionCopy() *models.Execution {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution := *r.execution
	execution.NodeStatuses = maps.Clone(r.execution.NodeStatuses)
	execution.Output = maps.Clone(r.execution.Output)

	return &execution
}

// outcome is what one walk of a frame produced.
type outcome struct {
	outputs map[string]any
	failed  bool
}

func (r *run) execute(ctx context.Context, span trace.Span) *models.ExecutionResult {
	r.sinkCtx = context.WithoutCancel(ctx)

	r.log("", models.LogLevelInfo, fmt.Sprintf("Execution of flow %q started", r.flow.Name), map[string]any{
		"input": r.execution.Input,
	})

	scope := interpolate.Scope{models.ScopeInput: r.execution.Input}
	walked := r.walk(ctx, mainFrame, scope)

	r.mu.Lock()
	for id, state := range r.states {
		if state.Status == models.NodeStatusPending {
			state.Status = models.NodeStatusSkipped
			r.execution.NodeStatuses[id] = models.NodeStatusSkipped
		}

		if r.failed[id] {
			r.execution.NodeStatuses[id] = models.NodeStatusError
		}
	}
	r.mu.Unlock()

	finishedAt := r.engine.now().UTC()

	status := models.ExecutionStatusSuccess
	errMessage := ""

	if len(r.failed) > 0 {
		status = models.ExecutionStatusFailed
		errMessage = fmt.Sprintf("nodes failed: %s", strings.Join(sortedKeys(r.failed), ", "))
	}

	if ctx.Err() != nil {
		status = models.ExecutionStatusFailed
		errMessage = joinMessage(errMessage, "execution cancelled: "+context.Cause(ctx).Error())
	}

	r.mu.Lock()
	r.execution.Status = status
	r.execution.FinishedAt = &finishedAt
	r.execution.DurationMs = finishedAt.Sub(r.execution.StartedAt).Milliseconds()
	r.execution.Output = walked.outputs
	r.execution.Error = errMessage
	r.mu.Unlock()

	level := models.LogLevelInfo
	if status == models.ExecutionStatusFailed {
		level = models.LogLevelError

		span.SetAttributes(attribute.String("conduit.execution.error", errMessage))
	}

	r.log("", level, fmt.Sprintf("Execution finished with status %s", status), map[string]any{
		"durationMs": r.execution.DurationMs,
	})

	execution := r.executionCopy()

	err := r.engine.sink.SetStatus(r.sinkCtx, execution)
	if err != nil {
		r.logger.Error("Failed to record final execution status", "error", err)
	}

	r.logger.Info("Execution finished", "status", status, "duration_ms", execution.DurationMs)

	return &models.ExecutionResult{
		ExecutionID:  execution.ID,
		Status:       execution.Status,
		Output:       execution.Output,
		NodeStatuses: execution.NodeStatuses,
		DurationMs:   execution.DurationMs,
		Error:        execution.Error,
	}
}

// walk executes the nodes of one frame in dependency order. Inside a loop frame the body
// edges leaving the loop are already live.
func (r *run) walk(ctx context.Context, frame string, scope interpolate.Scope) *outcome {
	ids := r.graph.frames[frame]
	result := &outcome{outputs: make(map[string]any)}

	edges := make(map[*models.Edge]edgeState)
	remaining := make(map[string]int, len(ids))
	queue := make([]string, 0, len(ids))

	for _, id := range ids {
		for _, edge := range r.graph.in[id] {
			if edge.Branch == models.BranchBody {
				edges[edge] = edgeLive

				continue
			}

			remaining[id]++
		}

		if remaining[id] == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		stepped := r.step(ctx, id, edges, scope)

		switch stepped.status {
		case models.NodeStatusSuccess:
			result.outputs[id] = stepped.output
			scope[id] = map[string]any{"result": stepped.output, "status": string(models.NodeStatusSuccess)}
		case models.NodeStatusError:
			result.failed = true
		}

		for _, edge := range r.graph.out[id] {
			if edge.Branch == models.BranchBody {
				continue
			}

			edges[edge] = outgoingState(edge, stepped)

			remaining[edge.To]--
			if remaining[edge.To] == 0 {
				queue = append(queue, edge.To)
			}
		}
	}

	return result
}

type stepResult struct {
	status  models.NodeStatus
	output  any
	branch  models.Branch
	removed bool
}

func outgoingState(edge *models.Edge, stepped stepResult) edgeState {
	switch {
	case stepped.removed:
		return edgeDropped
	case stepped.status == models.NodeStatusError:
		return edgePoisoned
	case stepped.status != models.NodeStatusSuccess:
		return edgeInactive
	case edge.Branch == models.BranchNone || edge.Branch == stepped.branch:
		return edgeLive
	default:
		return edgeInactive
	}
}

// step decides whether a ready node runs and runs it.
func (r *run) step(ctx context.Context, id string, edges map[*models.Edge]edgeState, scope interpolate.Scope) stepResult {
	node := r.graph.byID[id]

	reason, removed := r.claim(ctx, id, edges)
	if reason != "" {
		r.setStatus(id, models.NodeStatusSkipped, nil)
		r.log(id, models.LogLevelInfo, fmt.Sprintf("Node %s skipped: %s", nodeLabel(node), reason), nil)

		return stepResult{status: models.NodeStatusSkipped, removed: removed}
	}

	startedAt := r.engine.now()

	r.setStatus(id, models.NodeStatusRunning, nil)
	r.log(id, models.LogLevelInfo, fmt.Sprintf("Running node %s", nodeLabel(node)), map[string]any{"type": node.Type})

	nodeCtx, span := otelhelper.StartSpan(ctx, r.engine.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, r.execution.ID),
		attribute.String(otelhelper.NodeIDKey, id),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	result, err := r.invoke(nodeCtx, node, scope)
	if result != nil {
		for _, entry := range result.Logs {
			r.log(id, entry.Level, entry.Message, entry.Data)
		}
	}

	duration := r.engine.now().Sub(startedAt).Milliseconds()

	if err != nil {
		execErr := protocol.AsExecutionError(err, fallbackKind(node.Type))
		otelhelper.SetError(span, execErr, attribute.String(otelhelper.ErrorKindKey, string(execErr.Kind)))

		data := execErr.Data()
		data["durationMs"] = duration

		if execErr.Output != nil {
			data["output"] = execErr.Output
		}

		r.failed[id] = true
		r.setStatus(id, models.NodeStatusError, &models.NodeState{Output: execErr.Output, Error: execErr})
		r.log(id, models.LogLevelError, fmt.Sprintf("Node %s failed: %s", nodeLabel(node), execErr.Error()), data)

		return stepResult{status: models.NodeStatusError}
	}

	r.setStatus(id, models.NodeStatusSuccess, &models.NodeState{Output: result.Output})
	r.log(id, models.LogLevelInfo, fmt.Sprintf("Node %s succeeded", nodeLabel(node)), map[string]any{
		"output":     result.Output,
		"durationMs": duration,
	})

	return stepResult{status: models.NodeStatusSuccess, output: result.Output, branch: result.Branch}
}

// claim returns why a ready node must be skipped, or "" after marking it running. Both
// happen under the lock so a control signal either applies or is rejected as too late.
func (r *run) claim(ctx context.Context, id string, edges map[*models.Edge]edgeState) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason := r.skipReason(ctx, id, edges)
	if reason == "" {
		r.states[id].Status = models.NodeStatusRunning
	}

	return reason, r.removed[id]
}

func (r *run) skipReason(ctx context.Context, id string, edges map[*models.Edge]edgeState) string {
	switch {
	case ctx.Err() != nil:
		return "execution cancelled"
	case r.removed[id]:
		return "removed from the run"
	case r.skipped[id]:
		return "skipped by request"
	}

	considered, live := 0, false

	for _, edge := range r.graph.in[id] {
		switch edges[edge] {
		case edgeDropped:
			continue
		case edgePoisoned:
			return "an upstream node failed"
		case edgeLive:
			live = true
		}

		considered++
	}

	if considered > 0 && !live {
		return "no active incoming branch"
	}

	return ""
}

// invoke resolves the node config against scope and dispatches it. Loop nodes then
// iterate their body.
func (r *run) invoke(ctx context.Context, node *models.Node, scope interpolate.Scope) (*protocol.Result, error) {
	raw, unresolved := interpolate.ResolveConfig(node.Config, scope, models.ScriptFields(node.Type)...)
	for _, path := range unresolved {
		r.log(node.ID, models.LogLevelWarning, fmt.Sprintf("Unresolved reference {{%s}}", path), map[string]any{"path": path})
	}

	cfg, err := models.DecodeNodeConfig(node.Type, raw)
	if errors.Is(err, models.ErrUnknownNodeType) {
		cfg, err = &models.RawConfig{Type: node.Type, Values: raw}, nil
	}

	if err != nil {
		return nil, protocol.NewError(protocol.KindConfig, err)
	}

	executor, err := r.engine.registry.Executor(ctx, node.Type)
	if err != nil {
		return nil, protocol.NewError(protocol.KindConfig, err)
	}

	nctx := &protocol.NodeContext{
		ExecutionID: r.execution.ID,
		FlowID:      r.flow.ID,
		Owner:       r.flow.Owner,
		NodeID:      node.ID,
		Scope:       scope,
		Logger:      r.logger.With("node_id", node.ID),
	}

	result, err := executor.Execute(ctx, cfg, nctx)
	if err != nil || node.Type != models.NodeTypeLoop {
		return result, err
	}

	items, ok := result.Output.([]any)
	if !ok {
		return result, protocol.Errorf(protocol.KindType, "loop items must be an array, got %T", result.Output)
	}

	output, err := r.iterate(ctx, node, items, scope)
	result.Output = output

	return result, err
}

// iterate walks the body of loop once per item. Every iteration runs even after a
// failure; the loop then fails with the results collected so far.
func (r *run) iterate(ctx context.Context, loop *models.Node, items []any, scope interpolate.Scope) (any, error) {
	results := make([]any, len(items))

	var failed []string

	for index, item := range items {
		child := maps.Clone(scope)
		child[models.ScopeLoop] = map[string]any{"item": item, "index": index}

		r.log(loop.ID, models.LogLevelInfo, fmt.Sprintf("Loop %s iteration %d of %d", nodeLabel(loop), index+1, len(items)), map[string]any{
			"index": index,
		})

		iterCtx, span := otelhelper.StartSpan(ctx, r.engine.tracer, "loop.iteration",
			attribute.String(otelhelper.NodeIDKey, loop.ID),
			attribute.Int(otelhelper.LoopIndexKey, index),
		)

		walked := r.walk(iterCtx, loop.ID, child)
		span.End()

		results[index] = r.iterationResult(loop.ID, item, walked)

		if walked.failed {
			failed = append(failed, fmt.Sprint(index))
		}
	}

	if len(failed) > 0 {
		return results, &protocol.ExecutionError{
			Kind:    protocol.KindLoop,
			Message: fmt.Sprintf("%d of %d iterations failed (index %s)", len(failed), len(items), strings.Join(failed, ", ")),
			Output:  results,
		}
	}

	return results, nil
}

func (r *run) iterationResult(loopID string, item any, walked *outcome) any {
	sinks := r.graph.sinks[loopID]

	switch len(sinks) {
	case 0:
		return item
	case 1:
		return walked.outputs[sinks[0]]
	}

	results := make(map[string]any, len(sinks))

	for _, id := range sinks {
		if output, ok := walked.outputs[id]; ok {
			results[id] = output
		}
	}

	return results
}

func (r *run) setStatus(id string, status models.NodeStatus, detail *models.NodeState) {
	now := r.engine.now().UTC()

	r.mu.Lock()

	state := r.states[id]
	state.Status = status

	switch status {
	case models.NodeStatusRunning:
		state.StartedAt = &now
		state.FinishedAt = nil
		state.Runs++
	case models.NodeStatusSuccess, models.NodeStatusError, models.NodeStatusSkipped:
		state.FinishedAt = &now
	}

	if detail != nil {
		state.Output = detail.Output
		state.Error = detail.Error
	}

	r.execution.NodeStatuses[id] = status
	r.mu.Unlock()

	err := r.engine.sink.SetNodeStatus(r.sinkCtx, r.execution.ID, id, status)
	if err != nil {
		r.logger.Warn("Failed to record node status", "node_id", id, "status", status, "error", err)
	}
}

func (r *run) log(nodeID string, level models.LogLevel, message string, data any) {
	r.sequence++

	entry := &models.ExecutionLog{
		ID:          newID(),
		ExecutionID: r.execution.ID,
		NodeID:      nodeID,
		Sequence:    r.sequence,
		Timestamp:   r.engine.now().UTC(),
		Level:       level,
		Message:     message,
		Data:        data,
	}

	err := r.engine.sink.Append(r.sinkCtx, entry)
	if err != nil {
		r.logger.Warn("Failed to append execution log", "sequence", entry.Sequence, "error", err)
	}
}

func fallbackKind(nodeType models.NodeType) protocol.ErrorKind {
	switch nodeType {
	case models.NodeTypeHTTPRequest:
		return protocol.KindHTTP
	case models.NodeTypeTransform:
		return protocol.KindScript
	case models.NodeTypeCondition:
		return protocol.KindCondition
	case models.NodeTypeLoop:
		return protocol.KindLoop
	case models.NodeTypeTable:
		return protocol.KindTable
	default:
		return protocol.KindConfig
	}
}

func nodeLabel(node *models.Node) string {
	if node.Name != "" && node.Name != node.ID {
		return fmt.Sprintf("%q (%s)", node.Name, node.ID)
	}

	return node.ID
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func joinMessage(a, b string) string {
	if a == "" {
		return b
	}

	return a + "; " + b
}
