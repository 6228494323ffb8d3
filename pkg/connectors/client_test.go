package connectors

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func echoServer(t *testing.T, status int, contentType string, response string) (*httptest.Server, chan captured) {
	t.Helper()

	requests := make(chan captured, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- captured{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, header: r.Header.Clone(), body: body}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	return server, requests
}

func newTestClient() *Client {
	return NewClient(nil, auth.NewResolver(), nil, slog.Default())
}

func TestDo_ConnectorBaseURLAndHeaders(t *testing.T) {
	server, requests := echoServer(t, http.StatusOK, "application/json", `{"id": 7, "tags": ["a"]}`)

	connector := &models.Connector{
		ID:             "c1",
		BaseURL:        server.URL + "/v1/",
		AuthType:       models.AuthTypeBasic,
		AuthConfig:     models.AuthConfig{Username: "u", Password: "p"},
		DefaultHeaders: map[string]string{"X-Env": "prod", "Accept": "text/plain"},
	}

	resp, err := newTestClient().Do(context.Background(), connector, Request{
		Method:   "post",
		Endpoint: "/users",
		Headers:  map[string]string{"Accept": "application/json"},
		Query:    map[string]string{"page": "2"},
		Data:     map[string]any{"name": "ada"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{"id": float64(7), "tags": []any{"a"}}, resp.Data)
	assert.Equal(t, "req-1", resp.Headers["X-Request-Id"])
	assert.False(t, resp.TokenRefreshed)

	req := <-requests
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/v1/users", req.path)
	assert.Equal(t, "page=2", req.query)
	assert.Equal(t, "prod", req.header.Get("X-Env"))
	assert.Equal(t, "application/json", req.header.Get("Accept"))
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Contains(t, req.header.Get("Authorization"), "Basic ")
	assert.JSONEq(t, `{"name":"ada"}`, string(req.body))
}

func TestDo_NonSuccessIsNotAnError(t *testing.T) {
	server, _ := echoServer(t, http.StatusNotFound, "application/json", `{"error":"missing"}`)

	resp, err := newTestClient().Do(context.Background(), nil, Request{Endpoint: server.URL + "/x"})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, map[string]any{"error": "missing"}, resp.Data)
}

func TestDo_TextResponse(t *testing.T) {
	server, _ := echoServer(t, http.StatusOK, "text/plain", "hello")

	resp, err := newTestClient().Do(context.Background(), nil, Request{Endpoint: server.URL})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Data)
}

func TestDo_OversizedBodyIsHTTPError(t *testing.T) {
	server, _ := echoServer(t, http.StatusOK, "application/json", `{"items": ["a", "b", "c", "d"]}`)

	client := newTestClient()
	client.maxBody = 16

	_, err := client.Do(context.Background(), nil, Request{Endpoint: server.URL})
	require.Error(t, err)
	assert.True(t, protocol.IsKind(err, protocol.KindHTTP))
	assert.Contains(t, err.Error(), "exceeds 16 bytes")

	client.maxBody = 64

	resp, err := client.Do(context.Background(), nil, Request{Endpoint: server.URL})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"items": []any{"a", "b", "c", "d"}}, resp.Data)
}

func TestDo_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	_, err := newTestClient().Do(context.Background(), nil, Request{Endpoint: server.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, protocol.IsKind(err, protocol.KindHTTP))
	assert.Contains(t, err.Error(), "timed out")
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestClient().Do(context.Background(), nil, Request{Endpoint: url})
	require.Error(t, err)
	assert.True(t, protocol.IsKind(err, protocol.KindHTTP))
}

func TestDo_RelativeURLWithoutConnector(t *testing.T) {
	_, err := newTestClient().Do(context.Background(), nil, Request{Endpoint: "/users"})
	require.Error(t, err)
	assert.True(t, protocol.IsKind(err, protocol.KindHTTP))
}

func TestDo_OAuth2RefreshReportsUpdatedAuth(t *testing.T) {
	var tokenCalls atomic.Int32

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600})
	}))
	t.Cleanup(tokenServer.Close)

	api, requests := echoServer(t, http.StatusOK, "application/json", `{}`)

	connector := &models.Connector{
		ID:       "c-oauth",
		BaseURL:  api.URL,
		AuthType: models.AuthTypeOAuth2,
		AuthConfig: models.AuthConfig{
			TokenURL:     tokenServer.URL,
			ClientID:     "id",
			ClientSecret: "secret",
			GrantType:    models.GrantClientCredentials,
		},
	}

	resp, err := newTestClient().Do(context.Background(), connector, Request{Endpoint: "/me"})
	require.NoError(t, err)

	assert.True(t, resp.TokenRefreshed)
	require.NotNil(t, resp.UpdatedAuth)
	assert.Equal(t, "fresh", resp.UpdatedAuth.AccessToken)
	assert.Equal(t, int32(1), tokenCalls.Load())

	req := <-requests
	assert.Equal(t, "Bearer fresh", req.header.Get("Authorization"))
}

func TestDo_AuthFailureSendsNothing(t *testing.T) {
	api, requests := echoServer(t, http.StatusOK, "application/json", `{}`)

	connector := &models.Connector{
		BaseURL:    api.URL,
		AuthType:   models.AuthTypeOAuth2,
		AuthConfig: models.AuthConfig{TokenURL: api.URL + "/token", GrantType: models.GrantAuthorizationCode},
	}

	_, err := newTestClient().Do(context.Background(), connector, Request{Endpoint: "/me"})
	require.Error(t, err)
	assert.True(t, protocol.IsKind(err, protocol.KindAuth))
	assert.Empty(t, requests)
}

func TestTest_Connector(t *testing.T) {
	ok, _ := echoServer(t, http.StatusOK, "text/plain", "ok")
	failing, _ := echoServer(t, http.StatusUnauthorized, "text/plain", "no")

	client := newTestClient()

	result := client.Test(context.Background(), &models.Connector{BaseURL: ok.URL, AuthType: models.AuthTypeNone}, "")
	assert.True(t, result.Success)
	assert.Equal(t, http.StatusOK, result.Details["status"])

	result = client.Test(context.Background(), &models.Connector{BaseURL: failing.URL, AuthType: models.AuthTypeNone}, "/private")
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusUnauthorized, result.Details["status"])
}
