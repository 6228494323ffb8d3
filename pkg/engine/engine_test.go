package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/connectors"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordType models.NodeType = "record"

// recorder is a node type that records its invocations. Config keys: "sleepMs" delays,
// "block" waits for release, "fail" returns an HttpError, "output" sets the result.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	release chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		started: make(chan string, 10),
		release: make(chan struct{}),
	}
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func (r *recorder) Count(id string) int {
	count := 0

	for _, call := range r.Calls() {
		if call == id {
			count++
		}
	}

	return count
}

func (r *recorder) Create(context.Context) (protocol.NodeExecutor, error) { return r, nil }
func (r *recorder) ID() models.NodeType                                   { return recordType }
func (r *recorder) Name() string                                          { return "Record" }
func (r *recorder) Description() string                                   { return "records invocations" }
func (r *recorder) Schema() map[string]any                                { return map[string]any{"type": "object"} }
func (r *recorder) Type() models.NodeType                                 { return recordType }

func (r *recorder) Execute(ctx context.Context, cfg models.NodeConfig, nctx *protocol.NodeContext) (*protocol.Result, error) {
	values := cfg.(*models.RawConfig).Values

	r.mu.Lock()
	r.calls = append(r.calls, nctx.NodeID)
	r.mu.Unlock()

	if ms, ok := values["sleepMs"].(int); ok {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}

	if values["block"] == true {
		r.started <- nctx.NodeID

		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, protocol.NewError(protocol.KindHTTP, ctx.Err())
		}
	}

	result := &protocol.Result{}
	result.Log(models.LogLevelInfo, "recorded "+nctx.NodeID, nil)

	if values["fail"] == true {
		return result, &protocol.ExecutionError{
			Kind:       protocol.KindHTTP,
			Message:    "upstream returned 502",
			HTTPStatus: http.StatusBadGateway,
			Body:       map[string]any{"error": "bad gateway"},
		}
	}

	result.Output = values["output"]
	if result.Output == nil {
		result.Output = nctx.NodeID
	}

	return result, nil
}

type memorySink struct {
	mu       sync.Mutex
	logs     []*models.ExecutionLog
	statuses []*models.Execution
	events   []string
}

func (s *memorySink) Append(_ context.Context, entry *models.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, entry)
	s.events = append(s.events, "log")

	return nil
}

func (s *memorySink) SetStatus(_ context.Context, execution *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses = append(s.statuses, execution)
	s.events = append(s.events, "execution:"+string(execution.Status))

	return nil
}

func (s *memorySink) SetNodeStatus(_ context.Context, _, nodeID string, status models.NodeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, nodeID+":"+string(status))

	return nil
}

func (s *memorySink) Logs(level models.LogLevel, nodeID string) []*models.ExecutionLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	var logs []*models.ExecutionLog

	for _, entry := range s.logs {
		if entry.Level == level && entry.NodeID == nodeID {
			logs = append(logs, entry)
		}
	}

	return logs
}

func (s *memorySink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.events...)
}

type fixture struct {
	engine   *Engine
	sink     *memorySink
	recorder *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes(registry.Dependencies{
		Connectors: connectors.NewClient(nil, nil, nil, slog.Default()),
	})

	rec := newRecorder()
	reg.RegisterNode(rec)

	sink := &memorySink{}

	return &fixture{
		engine:   New(reg, sink, opts...),
		sink:     sink,
		recorder: rec,
	}
}

func node(id string, nodeType models.NodeType, config map[string]any) *models.Node {
	return &models.Node{ID: id, Type: nodeType, Config: config}
}

func record(id string, config ...map[string]any) *models.Node {
	cfg := map[string]any{}
	if len(config) > 0 {
		cfg = config[0]
	}

	return node(id, recordType, cfg)
}

func edge(from, to string, branch ...models.Branch) *models.Edge {
	e := &models.Edge{From: from, To: to}
	if len(branch) > 0 {
		e.Branch = branch[0]
	}

	return e
}

func flowOf(nodes []*models.Node, edges ...*models.Edge) *models.Flow {
	return &models.Flow{ID: "flow-1", Name: "test", Owner: "user-1", Nodes: nodes, Edges: edges}
}

func TestExecute_EmptyFlow(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine.Execute(context.Background(), flowOf(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Empty(t, result.Output)
	assert.Empty(t, result.NodeStatuses)
	assert.Equal(t, []string{"execution:running", "log", "log", "execution:success"}, f.sink.Events())
}

func TestExecute_PredecessorsFinishFirst(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			record("slow", map[string]any{"sleepMs": 30}),
			record("fast"),
			record("join"),
			record("after"),
		},
		edge("slow", "join"),
		edge("fast", "join"),
		edge("join", "after"),
	)

	result, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, []string{"slow", "fast", "join", "after"}, f.recorder.Calls())
}

func TestExecute_DiamondRunsJoinOnce(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{record("a"), record("b"), record("c"), record("d")},
		edge("a", "b"),
		edge("a", "c"),
		edge("b", "d"),
		edge("c", "d"),
	)

	_, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	calls := f.recorder.Calls()
	assert.Equal(t, 1, f.recorder.Count("d"))
	assert.Equal(t, "d", calls[len(calls)-1])
}

func TestExecute_ScopeCarriesOutputs(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			record("fetch", map[string]any{"output": map[string]any{"x": 5, "name": "ada"}}),
			node("double", models.NodeTypeTransform, map[string]any{"expression": "$.fetch.result.x * 2"}),
			node("greet", models.NodeTypeTransform, map[string]any{"expression": "'hi ' + {{fetch.result.name}} + ' ' + input.suffix"}),
		},
		edge("fetch", "double"),
		edge("fetch", "greet"),
	)

	result, err := f.engine.Execute(context.Background(), flow, map[string]any{"suffix": "!"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, float64(10), result.Output["double"])
	assert.Equal(t, "hi ada !", result.Output["greet"])
}

func TestExecute_NumericNodeIDsResolve(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			record("1", map[string]any{"output": map[string]any{
				"x":     5,
				"codes": map[string]any{"200": "ok"},
			}}),
			node("2", models.NodeTypeTransform, map[string]any{"expression": "{{1.result.x}} + 1"}),
			record("3", map[string]any{"output": "{{1.result.x}}"}),
			record("4", map[string]any{"output": "{{1.result.codes.200}}"}),
		},
		edge("1", "2"),
		edge("1", "3"),
		edge("1", "4"),
	)

	result, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.EqualValues(t, 6, result.Output["2"])
	assert.EqualValues(t, 5, result.Output["3"])
	assert.Equal(t, "ok", result.Output["4"])

	for _, id := range []string{"2", "3", "4"} {
		assert.Empty(t, f.sink.Logs(models.LogLevelWarning, id))
	}
}

func TestExecute_ConditionTakesOneBranch(t *testing.T) {
	for _, flag := range []bool{true, false} {
		f := newFixture(t)

		flow := flowOf(
			[]*models.Node{
				node("check", models.NodeTypeCondition, map[string]any{"expression": "input.flag === true"}),
				record("yes"),
				record("yes-after"),
				record("no"),
				record("join"),
			},
			edge("check", "yes", models.BranchTrue),
			edge("yes", "yes-after"),
			edge("check", "no", models.BranchFalse),
			edge("yes-after", "join"),
			edge("no", "join"),
		)

		result, err := f.engine.Execute(context.Background(), flow, map[string]any{"flag": flag})
		require.NoError(t, err)

		taken, untaken := []string{"yes", "yes-after"}, []string{"no"}
		if !flag {
			taken, untaken = untaken, taken
		}

		for _, id := range taken {
			assert.Equal(t, models.NodeStatusSuccess, result.NodeStatuses[id], id)
		}

		for _, id := range untaken {
			assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses[id], id)
			assert.Zero(t, f.recorder.Count(id))
		}

		assert.Equal(t, models.NodeStatusSuccess, result.NodeStatuses["join"])
		assert.Equal(t, flag, result.Output["check"])
		assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	}
}

func TestExecute_NonBooleanConditionFails(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			node("check", models.NodeTypeCondition, map[string]any{"expression": "'yes'"}),
			record("next"),
		},
		edge("check", "next", models.BranchTrue),
	)

	result, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.NodeStatusError, result.NodeStatuses["check"])
	assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["next"])

	logs := f.sink.Logs(models.LogLevelError, "check")
	require.Len(t, logs, 1)
	assert.Equal(t, "ConditionError", logs[0].Data.(map[string]any)["kind"])
}

func TestExecute_LoopRunsBodyPerItem(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			node("each", models.NodeTypeLoop, map[string]any{"items": "{{input.items}}"}),
			record("visit"),
			node("double", models.NodeTypeTransform, map[string]any{"expression": "loop.item * 2 + loop.index"}),
			record("after"),
		},
		edge("each", "visit", models.BranchBody),
		edge("visit", "double"),
		edge("double", "each"),
		edge("each", "after"),
	)

	result, err := f.engine.Execute(context.Background(), flow, map[string]any{"items": []any{1, 2, 3}})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, 3, f.recorder.Count("visit"))
	assert.Equal(t, []any{float64(2), float64(5), float64(8)}, result.Output["each"])
	assert.Equal(t, []string{"visit", "visit", "visit", "after"}, f.recorder.Calls())
	assert.NotContains(t, result.Output, "double")
}

func TestExecute_LoopIterationResults(t *testing.T) {
	t.Run("empty body yields the items", func(t *testing.T) {
		f := newFixture(t)

		flow := flowOf([]*models.Node{node("each", models.NodeTypeLoop, map[string]any{"items": []any{"a", "b"}})})

		result, err := f.engine.Execute(context.Background(), flow, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, result.Output["each"])
	})

	t.Run("several sinks yield a map", func(t *testing.T) {
		f := newFixture(t)

		flow := flowOf(
			[]*models.Node{
				node("each", models.NodeTypeLoop, map[string]any{"items": []any{1}}),
				node("left", models.NodeTypeTransform, map[string]any{"expression": "loop.item"}),
				node("right", models.NodeTypeTransform, map[string]any{"expression": "-loop.item"}),
			},
			edge("each", "left", models.BranchBody),
			edge("each", "right", models.BranchBody),
		)

		result, err := f.engine.Execute(context.Background(), flow, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{map[string]any{"left": float64(1), "right": float64(-1)}}, result.Output["each"])
	})

	t.Run("empty items", func(t *testing.T) {
		f := newFixture(t)

		flow := flowOf(
			[]*models.Node{node("each", models.NodeTypeLoop, map[string]any{"items": "{{input.items}}"}), record("visit")},
			edge("each", "visit", models.BranchBody),
		)

		result, err := f.engine.Execute(context.Background(), flow, map[string]any{"items": []any{}})
		require.NoError(t, err)
		assert.Equal(t, []any{}, result.Output["each"])
		assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["visit"])
	})
}

func TestExecute_LoopFailureKeepsPartialOutput(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			node("each", models.NodeTypeLoop, map[string]any{"items": []any{1, 0, 2}}),
			node("check", models.NodeTypeTransform, map[string]any{"expression": "if (loop.item === 0) { throw new Error('zero') } loop.item"}),
			record("after"),
		},
		edge("each", "check", models.BranchBody),
		edge("each", "after"),
	)

	result, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Equal(t, models.NodeStatusError, result.NodeStatuses["each"])
	assert.Equal(t, models.NodeStatusError, result.NodeStatuses["check"])
	assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["after"])

	logs := f.sink.Logs(models.LogLevelError, "each")
	require.Len(t, logs, 1)

	data := logs[0].Data.(map[string]any)
	assert.Equal(t, "LoopError", data["kind"])
	assert.Equal(t, []any{float64(1), nil, float64(2)}, data["output"])
	assert.Len(t, f.sink.Logs(models.LogLevelError, "check"), 1)
}

func TestExecute_LoopItemsMustBeArray(t *testing.T) {
	f := newFixture(t)

	flow := flowOf([]*models.Node{node("each", models.NodeTypeLoop, map[string]any{"items": "{{input.items}}"})})

	result, err := f.engine.Execute(context.Background(), flow, map[string]any{"items": "nope"})
	require.NoError(t, err)

	logs := f.sink.Logs(models.LogLevelError, "each")
	require.Len(t, logs, 1)
	assert.Equal(t, "TypeError", logs[0].Data.(map[string]any)["kind"])
	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
}

func TestExecute_UnresolvedTokenWarnsOnce(t *testing.T) {
	f := newFixture(t)

	flow := flowOf([]*models.Node{
		record("use", map[string]any{"a": "{{b.result.x}}", "b": "id-{{b.result.x}}"}),
	})

	result, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	warnings := f.sink.Logs(models.LogLevelWarning, "use")
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "{{b.result.x}}")
	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
}

func TestExecute_HTTPFailureSkipsDownstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Path == "/b" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"boom"}`))

			return
		}

		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			node("a", models.NodeTypeHTTPRequest, map[string]any{"url": server.URL + "/a"}),
			node("b", models.NodeTypeHTTPRequest, map[string]any{"url": server.URL + "/b"}),
			record("c"),
			record("sibling"),
		},
		edge("a", "b"),
		edge("b", "c"),
	)

	result, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Equal(t, models.NodeStatusSuccess, result.NodeStatuses["a"])
	assert.Equal(t, models.NodeStatusError, result.NodeStatuses["b"])
	assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["c"])
	assert.Equal(t, models.NodeStatusSuccess, result.NodeStatuses["sibling"])
	assert.Zero(t, f.recorder.Count("c"))

	errLogs := f.sink.Logs(models.LogLevelError, "b")
	require.Len(t, errLogs, 1)

	data := errLogs[0].Data.(map[string]any)
	assert.Equal(t, "HttpError", data["kind"])
	assert.Equal(t, http.StatusInternalServerError, data["status"])
	assert.Equal(t, map[string]any{"error": "boom"}, data["body"])

	assert.Contains(t, result.Output, "a")
	assert.NotContains(t, result.Output, "b")
}

func TestExecute_ExecutorLogsPrecedeError(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Execute(context.Background(), flowOf([]*models.Node{record("x", map[string]any{"fail": true})}), nil)
	require.NoError(t, err)

	var messages []string
	for _, entry := range f.sink.logs {
		if entry.NodeID == "x" {
			messages = append(messages, entry.Message)
		}
	}

	require.Len(t, messages, 3)
	assert.Equal(t, "recorded x", messages[1])
	assert.True(t, strings.HasPrefix(messages[2], "Node x failed"))
}

func TestExecute_FinalStatusAfterLogs(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Execute(context.Background(), flowOf([]*models.Node{record("a"), record("b")}, edge("a", "b")), nil)
	require.NoError(t, err)

	events := f.sink.Events()
	assert.Equal(t, "execution:success", events[len(events)-1])

	var last int64
	for _, entry := range f.sink.logs {
		assert.Greater(t, entry.Sequence, last)
		last = entry.Sequence
	}
}

func TestExecute_RerunIsEquivalent(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{
			node("check", models.NodeTypeCondition, map[string]any{"expression": "input.n > 1"}),
			node("big", models.NodeTypeTransform, map[string]any{"expression": "input.n * 10"}),
			record("small"),
		},
		edge("check", "big", models.BranchTrue),
		edge("check", "small", models.BranchFalse),
	)

	first, err := f.engine.Execute(context.Background(), flow, map[string]any{"n": 3})
	require.NoError(t, err)

	second, err := f.engine.Execute(context.Background(), flow, map[string]any{"n": 3})
	require.NoError(t, err)

	assert.NotEqual(t, first.ExecutionID, second.ExecutionID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.NodeStatuses, second.NodeStatuses)
	assert.Equal(t, first.Output, second.Output)
}

func TestExecute_GraphErrorRejectsBeforeRunning(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Execute(context.Background(), flowOf(
		[]*models.Node{record("a"), record("b")},
		edge("a", "b"),
		edge("b", "a"),
	), nil)

	var graphErr *GraphError
	require.True(t, errors.As(err, &graphErr))
	assert.ErrorIs(t, err, ErrInvalidGraph)
	assert.Empty(t, f.recorder.Calls())
	assert.Empty(t, f.sink.Events())
}

func TestStart_ReturnsRunningExecution(t *testing.T) {
	f := newFixture(t)

	flow := flowOf([]*models.Node{record("a", map[string]any{"block": true})})

	execution, results, err := f.engine.Start(context.Background(), flow, map[string]any{"k": "v"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, models.NodeStatusPending, execution.NodeStatuses["a"])
	assert.Equal(t, "flow-1", execution.FlowID)

	<-f.recorder.started
	assert.True(t, f.engine.Running(execution.ID))

	close(f.recorder.release)

	result := <-results
	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.False(t, f.engine.Running(execution.ID))

	_, open := <-results
	assert.False(t, open)
}

func TestStart_DetachedFromCallerContext(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())

	_, results, err := f.engine.Start(ctx, flowOf([]*models.Node{record("a", map[string]any{"block": true})}), nil)
	require.NoError(t, err)

	<-f.recorder.started
	cancel()
	close(f.recorder.release)

	assert.Equal(t, models.ExecutionStatusSuccess, (<-results).Status)
}

func TestSkip_PendingNode(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{record("a", map[string]any{"block": true}), record("b"), record("c")},
		edge("a", "b"),
		edge("b", "c"),
	)

	execution, results, err := f.engine.Start(context.Background(), flow, nil)
	require.NoError(t, err)

	<-f.recorder.started

	err = f.engine.Skip(execution.ID, "a")
	assert.ErrorIs(t, err, ErrNodeNotPending)

	require.NoError(t, f.engine.Skip(execution.ID, "b"))
	close(f.recorder.release)

	result := <-results
	assert.Equal(t, models.NodeStatusSuccess, result.NodeStatuses["a"])
	assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["b"])
	assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["c"])
	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, []string{"a"}, f.recorder.Calls())
}

func TestRemove_SuccessorsStopWaiting(t *testing.T) {
	f := newFixture(t)

	flow := flowOf(
		[]*models.Node{record("a", map[string]any{"block": true}), record("b"), record("c")},
		edge("a", "b"),
		edge("b", "c"),
	)

	execution, results, err := f.engine.Start(context.Background(), flow, nil)
	require.NoError(t, err)

	<-f.recorder.started
	require.NoError(t, f.engine.Remove(execution.ID, "b"))
	close(f.recorder.release)

	result := <-results
	assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["b"])
	assert.Equal(t, models.NodeStatusSuccess, result.NodeStatuses["c"])
	assert.Equal(t, []string{"a", "c"}, f.recorder.Calls())
}

func TestControl_Errors(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.Skip("missing", "a"), ErrExecutionNotRunning)

	execution, results, err := f.engine.Start(context.Background(), flowOf([]*models.Node{record("a", map[string]any{"block": true})}), nil)
	require.NoError(t, err)

	<-f.recorder.started
	assert.ErrorIs(t, f.engine.Remove(execution.ID, "zzz"), ErrNodeNotFound)

	states, err := f.engine.NodeStates(execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusRunning, states["a"].Status)
	assert.Equal(t, 1, states["a"].Runs)

	close(f.recorder.release)
	<-results

	assert.ErrorIs(t, f.engine.Skip(execution.ID, "a"), ErrExecutionNotRunning)
}

func TestExecute_TimeoutSkipsRemainingNodes(t *testing.T) {
	f := newFixture(t, WithExecutionTimeout(50*time.Millisecond))

	flow := flowOf(
		[]*models.Node{record("a", map[string]any{"block": true}), record("b")},
		edge("a", "b"),
	)

	result, err := f.engine.Execute(context.Background(), flow, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusFailed, result.Status)
	assert.Equal(t, models.NodeStatusError, result.NodeStatuses["a"])
	assert.Equal(t, models.NodeStatusSkipped, result.NodeStatuses["b"])
	assert.Contains(t, result.Error, "execution cancelled")
}
