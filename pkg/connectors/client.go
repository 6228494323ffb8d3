// Package connectors sends HTTP requests through stored connectors, applying their base
// URL, default headers and credentials.
package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

const DefaultTimeout = 30 * time.Second

const maxResponseBytes = 10 << 20

// Store loads connectors by id.
type Store interface {
	ConnectorByID(ctx context.Context, id string) (*models.Connector, error)
}

// Request describes an outbound call. Endpoint is relative to the connector base URL,
// or an absolute URL when no connector is used.
type Request struct {
	Method   string
	Endpoint string
	Headers  map[string]string
	Query    map[string]string
	Data     any
	Timeout  time.Duration
}

// Response is the parsed outcome of a request that reached the server. A non-2xx
// status is reported through Success, not as an error.
type Response struct {
	Success        bool           `json:"success"`
	Status         int            `json:"status"`
	Data           any            `json:"data"`
	Headers        map[string]any `json:"headers"`
	TokenRefreshed bool           `json:"tokenRefreshed"`
	UpdatedAuth    *models.Tokens `json:"updatedAuth,omitempty"`
}

type Client struct {
	httpClient *http.Client
	resolver   *auth.Resolver
	store      Store
	logger     *slog.Logger
	maxBody    int64
}

func NewClient(httpClient *http.Client, resolver *auth.Resolver, store Store, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	if resolver == nil {
		resolver = auth.NewResolver(auth.WithHTTPClient(httpClient), auth.WithLogger(logger))
	}

	return &Client{
		httpClient: httpClient,
		resolver:   resolver,
		store:      store,
		logger:     logger.With("module", "connectors"),
		maxBody:    maxResponseBytes,
	}
}

// Connector loads a connector from the store.
func (c *Client) Connector(ctx context.Context, id string) (*models.Connector, error) {
	if c.store == nil {
		return nil, errors.New("no connector store configured")
	}

	return c.store.ConnectorByID(ctx, id)
}

// Do sends req through connector, which may be nil for unauthenticated absolute URLs.
// Network failures and timeouts are HttpError; credential failures are AuthError and
// happen before anything is sent.
func (c *Client) Do(ctx context.Context, connector *models.Connector, req Request) (*Response, error) {
	target, err := buildURL(connector, req.Endpoint, req.Query)
	if err != nil {
		return nil, protocol.NewError(protocol.KindHTTP, err)
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	header := http.Header{}

	if connector != nil {
		for k, v := range connector.DefaultHeaders {
			header.Set(k, v)
		}
	}

	for k, v := range req.Headers {
		header.Set(k, v)
	}

	authTarget := &auth.Target{Header: header, Body: req.Data}

	authorization, err := c.resolver.Authorize(ctx, connector, authTarget)
	if err != nil {
		return nil, protocol.AsExecutionError(err, protocol.KindAuth)
	}

	body, err := encodeBody(authTarget.Body, header)
	if err != nil {
		return nil, protocol.NewError(protocol.KindHTTP, err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, protocol.NewError(protocol.KindHTTP, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header = header

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, protocol.NewError(protocol.KindHTTP, fmt.Errorf("request timed out after %s: %w", timeout, err))
		}

		return nil, protocol.NewError(protocol.KindHTTP, fmt.Errorf("request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, protocol.NewError(protocol.KindHTTP, fmt.Errorf("failed to read response: %w", err))
	}

	if int64(len(raw)) > c.maxBody {
		return nil, &protocol.ExecutionError{
			Kind:       protocol.KindHTTP,
			Message:    fmt.Sprintf("response body from %s exceeds %d bytes", target, c.maxBody),
			HTTPStatus: resp.StatusCode,
		}
	}

	log.FromContext(ctx, c.logger).DebugContext(ctx, "Request completed",
		"method", method, "url", target, "status", resp.StatusCode, "duration", time.Since(start))

	response := &Response{
		Success: resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:  resp.StatusCode,
		Data:    decodeBody(resp.Header.Get("Content-Type"), raw),
		Headers: flattenHeaders(resp.Header),
	}

	if authorization.TokenRefreshed {
		tokens := authorization.Connector.AuthConfig.Tokens
		response.TokenRefreshed = true
		response.UpdatedAuth = &tokens
	}

	return response, nil
}

func buildURL(connector *models.Connector, endpoint string, query map[string]string) (string, error) {
	raw := endpoint

	if connector != nil && connector.BaseURL != "" && !isAbsolute(endpoint) {
		raw = strings.TrimRight(connector.BaseURL, "/")
		if endpoint != "" {
			raw += "/" + strings.TrimLeft(endpoint, "/")
		}
	}

	if raw == "" {
		return "", errors.New("no url or endpoint given")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}

	if !parsed.IsAbs() {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}

	if len(query) > 0 {
		values := parsed.Query()
		for k, v := range query {
			values.Set(k, v)
		}

		parsed.RawQuery = values.Encode()
	}

	return parsed.String(), nil
}

func isAbsolute(endpoint string) bool {
	return strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://")
}

func encodeBody(data any, header http.Header) (io.Reader, error) {
	switch payload := data.(type) {
	case nil:
		return nil, nil
	case string:
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "text/plain; charset=utf-8")
		}

		return strings.NewReader(payload), nil
	case []byte:
		return bytes.NewReader(payload), nil
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", "application/json")
		}

		return bytes.NewReader(encoded), nil
	}
}

func decodeBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	if strings.Contains(strings.ToLower(contentType), "json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			return decoded
		}
	}

	return string(raw)
}

func flattenHeaders(header http.Header) map[string]any {
	flat := make(map[string]any, len(header))
	for k, v := range header {
		flat[k] = strings.Join(v, ", ")
	}

	return flat
}
