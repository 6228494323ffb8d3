package sink_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/conduit/pkg/channels/gochannel"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepository struct {
	mu         sync.Mutex
	logs       []*models.ExecutionLog
	executions map[string]*models.Execution
	nodes      map[string]models.NodeStatus
	err        error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		executions: make(map[string]*models.Execution),
		nodes:      make(map[string]models.NodeStatus),
	}
}

func (r *memoryRepository) SaveExecution(_ context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.executions[execution.ID] = execution

	return nil
}

func (r *memoryRepository) UpdateNodeStatus(_ context.Context, _ string, nodeID string, status models.NodeStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.nodes[nodeID] = status

	return nil
}

func (r *memoryRepository) AppendLog(_ context.Context, entry *models.ExecutionLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}

	r.logs = append(r.logs, entry)

	return nil
}

func (r *memoryRepository) logCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.logs)
}

func newSink(t *testing.T, repo sink.Repository) *sink.EventSink {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	s := sink.NewEventSink(repo, pub, sub, slog.Default())

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func receive(t *testing.T, events <-chan sink.Event) sink.Event {
	t.Helper()

	select {
	case event, ok := <-events:
		require.True(t, ok, "event stream closed")

		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")

		return sink.Event{}
	}
}

func TestEventSink_PersistsThenPublishes(t *testing.T) {
	repo := newMemoryRepository()
	s := newSink(t, repo)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	events, err := s.Subscribe(ctx, "exec-1")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, &models.ExecutionLog{ExecutionID: "exec-1", Sequence: 1, Message: "Running node fetch"}))

	event := receive(t, events)
	assert.Equal(t, sink.EventLog, event.Type)
	require.NotNil(t, event.Log)
	assert.Equal(t, "Running node fetch", event.Log.Message)
	assert.Equal(t, 1, repo.logCount())

	require.NoError(t, s.SetNodeStatus(ctx, "exec-1", "fetch", models.NodeStatusSuccess))

	event = receive(t, events)
	assert.Equal(t, sink.EventNodeStatus, event.Type)
	assert.Equal(t, "fetch", event.NodeID)
	assert.Equal(t, models.NodeStatusSuccess, event.NodeStatus)
	assert.False(t, event.Terminal())

	require.NoError(t, s.SetStatus(ctx, &models.Execution{ID: "exec-1", Status: models.ExecutionStatusSuccess}))

	event = receive(t, events)
	assert.Equal(t, sink.EventStatus, event.Type)
	assert.True(t, event.Terminal())
}

func TestEventSink_FiltersByExecution(t *testing.T) {
	s := newSink(t, newMemoryRepository())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	events, err := s.Subscribe(ctx, "exec-1")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, &models.ExecutionLog{ExecutionID: "exec-2", Sequence: 1, Message: "other"}))

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, s.Append(ctx, &models.ExecutionLog{ExecutionID: "exec-1", Sequence: seq, Message: "mine"}))
	}

	for seq := int64(1); seq <= 3; seq++ {
		event := receive(t, events)
		assert.Equal(t, "exec-1", event.ExecutionID)
		assert.Equal(t, seq, event.Log.Sequence)
	}
}

func TestEventSink_EmptyExecutionIDReceivesEverything(t *testing.T) {
	s := newSink(t, newMemoryRepository())

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	events, err := s.Subscribe(ctx, "")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, &models.ExecutionLog{ExecutionID: "exec-1", Sequence: 1, Message: "first"}))
	require.NoError(t, s.Append(ctx, &models.ExecutionLog{ExecutionID: "exec-2", Sequence: 1, Message: "second"}))

	assert.Equal(t, "exec-1", receive(t, events).ExecutionID)
	assert.Equal(t, "exec-2", receive(t, events).ExecutionID)
}

func TestEventSink_RepositoryFailureIsNotPublished(t *testing.T) {
	repo := newMemoryRepository()
	repo.err = errors.New("disk full")
	s := newSink(t, repo)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	events, err := s.Subscribe(ctx, "exec-1")
	require.NoError(t, err)

	err = s.SetStatus(ctx, &models.Execution{ID: "exec-1", Status: models.ExecutionStatusRunning})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	select {
	case event := <-events:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventSink_SubscriptionEndsWithContext(t *testing.T) {
	s := newSink(t, newMemoryRepository())

	ctx, cancel := context.WithCancel(t.Context())

	events, err := s.Subscribe(ctx, "exec-1")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
}
