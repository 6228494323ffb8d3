// Package httprequest provides the http_request node executor.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dukex/conduit/pkg/connectors"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// ConnectorClient sends requests through connectors.
type ConnectorClient interface {
	Connector(ctx context.Context, id string) (*models.Connector, error)
	Do(ctx context.Context, connector *models.Connector, req connectors.Request) (*connectors.Response, error)
}

// HTTPRequestNode calls an external API, optionally through a stored connector.
type HTTPRequestNode struct {
	client ConnectorClient
}

func NewHTTPRequestNode(client ConnectorClient) *HTTPRequestNode {
	return &HTTPRequestNode{client: client}
}

func (n *HTTPRequestNode) Type() models.NodeType {
	return models.NodeTypeHTTPRequest
}

// Execute sends the request and returns {status, headers, data}. Network errors and 5xx
// responses are retried up to the configured attempts. A non-2xx final response is an
// HttpError carrying the status and body.
func (n *HTTPRequestNode) Execute(ctx context.Context, cfg models.NodeConfig, nctx *protocol.NodeContext) (*protocol.Result, error) {
	config, ok := cfg.(*models.HTTPRequestConfig)
	if !ok {
		return nil, protocol.Errorf(protocol.KindConfig, "expected http_request config, got %T", cfg)
	}

	var connector *models.Connector

	endpoint := config.URL

	if config.ConnectorID != "" {
		var err error

		connector, err = n.client.Connector(ctx, config.ConnectorID)
		if err != nil {
			return nil, protocol.NewError(protocol.KindConfig, fmt.Errorf("connector %s: %w", config.ConnectorID, err))
		}

		if config.Endpoint != "" {
			endpoint = config.Endpoint
		}
	}

	req := connectors.Request{
		Method:   config.Method,
		Endpoint: endpoint,
		Headers:  stringMap(config.Headers),
		Query:    stringMap(config.Query),
		Data:     config.Body,
		Timeout:  config.Timeout(),
	}

	result := &protocol.Result{}
	result.Log(models.LogLevelInfo, fmt.Sprintf("%s %s", req.Method, endpoint), map[string]any{
		"request": map[string]any{
			"method":      req.Method,
			"endpoint":    endpoint,
			"connectorId": config.ConnectorID,
			"headers":     req.Headers,
			"query":       req.Query,
			"body":        req.Data,
		},
	})

	attempts := config.Retries.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		resp *connectors.Response
		err  error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			result.Log(models.LogLevelWarning, fmt.Sprintf("Retrying request (attempt %d of %d)", attempt, attempts), nil)

			if waitErr := wait(ctx, time.Duration(config.Retries.Delay)*time.Millisecond); waitErr != nil {
				return result, protocol.NewError(protocol.KindHTTP, waitErr)
			}
		}

		resp, err = n.client.Do(ctx, connector, req)
		if err != nil {
			if protocol.IsKind(err, protocol.KindAuth) {
				return result, err
			}

			continue
		}

		if resp.Status < http.StatusInternalServerError {
			break
		}
	}

	if err != nil {
		return result, protocol.AsExecutionError(err, protocol.KindHTTP)
	}

	if resp.TokenRefreshed {
		result.Log(models.LogLevelInfo, "Connector token refreshed", map[string]any{"connectorId": config.ConnectorID})
	}

	result.Log(models.LogLevelInfo, fmt.Sprintf("Response %d", resp.Status), map[string]any{
		"response": map[string]any{
			"status":  resp.Status,
			"headers": resp.Headers,
			"body":    resp.Data,
		},
	})

	if !resp.Success {
		return result, &protocol.ExecutionError{
			Kind:       protocol.KindHTTP,
			Message:    fmt.Sprintf("%s %s responded with status %d", req.Method, endpoint, resp.Status),
			HTTPStatus: resp.Status,
			Body:       resp.Data,
		}
	}

	result.Output = map[string]any{
		"status":  resp.Status,
		"headers": resp.Headers,
		"data":    resp.Data,
	}

	return result, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stringMap(values map[string]any) map[string]string {
	if len(values) == 0 {
		return nil
	}

	out := make(map[string]string, len(values))

	for k, v := range values {
		switch typed := v.(type) {
		case string:
			out[k] = typed
		case nil:
			out[k] = ""
		default:
			encoded, err := json.Marshal(typed)
			if err != nil {
				out[k] = fmt.Sprint(typed)

				continue
			}

			out[k] = string(encoded)
		}
	}

	return out
}
