package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/conduit/pkg/channels/gochannel"
	"github.com/dukex/conduit/pkg/config"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence/file"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doubleFlow = `{
	"name": "Double",
	"nodes": [
		{"id": "double", "type": "transform", "config": {"expression": "input.value * 2"}},
		{"id": "check", "type": "condition", "config": {"expression": "$.double.result > 5"}}
	],
	"edges": [{"from": "double", "to": "check"}]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func newTestEngine(t *testing.T) (*engine.Engine, *sink.EventSink) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes(registry.Dependencies{Tables: persistence.TableRepository()})

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	events := sink.NewEventSink(persistence.ExecutionRepository(), pub, sub, slog.Default())
	t.Cleanup(func() { _ = events.Close() })

	return engine.New(reg, events), events
}

func TestParseInput(t *testing.T) {
	input, err := parseInput("")
	require.NoError(t, err)
	assert.Empty(t, input)

	input, err = parseInput(`{"value": 3}`)
	require.NoError(t, err)
	assert.InDelta(t, 3, input["value"], 0)

	input, err = parseInput("@" + writeFile(t, "input.json", `{"value": 4}`))
	require.NoError(t, err)
	assert.InDelta(t, 4, input["value"], 0)

	_, err = parseInput(`[1, 2]`)
	require.Error(t, err)
}

func TestRunFlow_StreamsEventsInOrder(t *testing.T) {
	eng, events := newTestEngine(t)

	flow, err := config.LoadFlowFile(writeFile(t, "flow.json", doubleFlow))
	require.NoError(t, err)

	var received []sink.Event

	result, err := runFlow(t.Context(), eng, events, flow, map[string]any{"value": 4}, func(event sink.Event) error {
		received = append(received, event)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, result.Status)

	require.NotEmpty(t, received)
	assert.Equal(t, sink.EventStatus, received[0].Type)
	assert.Equal(t, models.ExecutionStatusRunning, received[0].Execution.Status)
	assert.True(t, received[len(received)-1].Terminal())

	var lastSequence int64

	for _, event := range received {
		assert.Equal(t, result.ExecutionID, event.ExecutionID)

		if event.Type == sink.EventLog {
			assert.Greater(t, event.Log.Sequence, lastSequence)
			lastSequence = event.Log.Sequence
		}
	}
}

func TestRunFlow_InvalidGraph(t *testing.T) {
	eng, events := newTestEngine(t)

	flow := &models.Flow{
		Name:  "Broken",
		Nodes: []*models.Node{{ID: "a", Type: models.NodeTypeTransform, Config: map[string]any{"expression": "1"}}},
		Edges: []*models.Edge{{From: "a", To: "ghost"}},
	}

	_, err := runFlow(t.Context(), eng, events, flow, nil, func(sink.Event) error { return nil })
	require.ErrorIs(t, err, engine.ErrInvalidGraph)
}

func TestPrinters(t *testing.T) {
	eng, events := newTestEngine(t)

	flow, err := config.LoadFlowFile(writeFile(t, "flow.json", doubleFlow))
	require.NoError(t, err)

	var text bytes.Buffer

	printer, err := newPrinter("text", &text)
	require.NoError(t, err)

	result, err := runFlow(t.Context(), eng, events, flow, map[string]any{"value": 1}, printer)
	require.NoError(t, err)
	assert.Contains(t, text.String(), "execution "+result.ExecutionID+" running")
	assert.Contains(t, text.String(), "node double is success")
	assert.Contains(t, text.String(), "execution "+result.ExecutionID+" success in ")

	var out bytes.Buffer

	printer, err = newPrinter("json", &out)
	require.NoError(t, err)

	_, err = runFlow(t.Context(), eng, events, flow, map[string]any{"value": 1}, printer)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)

	var last sink.Event
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.True(t, last.Terminal())

	_, err = newPrinter("yaml", &out)
	require.Error(t, err)
}
