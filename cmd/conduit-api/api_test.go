package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/channels/gochannel"
	"github.com/dukex/conduit/pkg/connectors"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence/file"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/sink"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	resolver := auth.NewResolver(auth.WithStore(persistence.ConnectorRepository()))
	client := connectors.NewClient(nil, resolver, persistence.ConnectorRepository(), slog.Default())

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterDefaultNodes(registry.Dependencies{Connectors: client, Tables: persistence.TableRepository()})

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	eventSink := sink.NewEventSink(persistence.ExecutionRepository(), pub, sub, slog.Default())
	t.Cleanup(func() { _ = eventSink.Close() })

	app := NewAPI(
		slog.Default(),
		persistence,
		reg,
		engine.New(reg, eventSink),
		client,
		resolver,
	)

	return app.App()
}

func get(t *testing.T, app *fiber.App, path string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Conduit API", body)
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/livez")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, body = get(t, app, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "healthy")
}

func TestAPI_GetFlows_Empty(t *testing.T) {
	app := setupTestApp(t)

	status, body := get(t, app, "/flows")
	require.Equal(t, http.StatusOK, status)

	var flows []*models.Flow
	require.NoError(t, json.Unmarshal([]byte(body), &flows))
	assert.Empty(t, flows)
}

func TestAPI_CreateFlow(t *testing.T) {
	app := setupTestApp(t)

	payload := `{"name":"Hello","nodes":[{"id":"greet","type":"transform","config":{"expression":"'hello'"}}]}`

	req := httptest.NewRequest(http.MethodPost, "/flows", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	status, body := get(t, app, "/flows")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"name":"Hello"`)
}
