package auth

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRefresher_InvalidSchedule(t *testing.T) {
	_, err := NewRefresher(NewResolver(), newMemoryStore(), "not a cron", slog.Default())
	assert.Error(t, err)
}

func TestRefresher_Sweep(t *testing.T) {
	server := newTokenServer(t, map[string]any{"access_token": "swept", "expires_in": 3600})

	soon := time.Now().Add(time.Minute)
	later := time.Now().Add(time.Hour)

	expiring := oauthConnector(server.URL, &soon)
	expiring.ID = "expiring"

	healthy := oauthConnector(server.URL, &later)
	healthy.ID = "healthy"

	neverAuthorized := oauthConnector(server.URL, nil)
	neverAuthorized.ID = "never"
	neverAuthorized.AuthConfig.AccessToken = ""

	basic := &models.Connector{ID: "basic", AuthType: models.AuthTypeBasic}

	store := newMemoryStore(expiring, healthy, neverAuthorized, basic)
	resolver := NewResolver(WithStore(store))

	refresher, err := NewRefresher(resolver, store, "@every 1m", slog.Default())
	require.NoError(t, err)

	count, err := refresher.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int32(1), server.calls.Load())

	stored, err := store.ConnectorByID(context.Background(), "expiring")
	require.NoError(t, err)
	assert.Equal(t, "swept", stored.AuthConfig.AccessToken)
}

func TestRefresher_StartStop(t *testing.T) {
	refresher, err := NewRefresher(NewResolver(), newMemoryStore(), "@every 1h", slog.Default())
	require.NoError(t, err)

	require.NoError(t, refresher.Start(context.Background()))
	refresher.Stop()
}

func TestCronLogger_RecoveredPanicGoesToSlog(t *testing.T) {
	var buf bytes.Buffer

	logger := cronLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	job := cron.NewChain(cron.Recover(logger)).Then(cron.FuncJob(func() {
		panic("sweep exploded")
	}))

	assert.NotPanics(t, job.Run)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "msg=panic")
	assert.Contains(t, buf.String(), "sweep exploded")

	buf.Reset()
	logger.Info("skip")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "msg=skip")
}
