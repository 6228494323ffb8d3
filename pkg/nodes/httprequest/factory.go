package httprequest

import (
	"context"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// HTTPRequestNodeFactory creates HTTPRequestNode executors.
type HTTPRequestNodeFactory struct {
	client ConnectorClient
}

// NewHTTPRequestNodeFactory creates a new HTTP request node factory.
func NewHTTPRequestNodeFactory(client ConnectorClient) protocol.NodeFactory {
	return &HTTPRequestNodeFactory{client: client}
}

func (f *HTTPRequestNodeFactory) Create(ctx context.Context) (protocol.NodeExecutor, error) {
	return NewHTTPRequestNode(f.client), nil
}

func (f *HTTPRequestNodeFactory) ID() models.NodeType {
	return models.NodeTypeHTTPRequest
}

func (f *HTTPRequestNodeFactory) Name() string {
	return "HTTP Request"
}

func (f *HTTPRequestNodeFactory) Description() string {
	return "Calls an external API through a connector or an absolute URL, with retries on network errors and 5xx responses"
}

// Schema returns the JSON schema for HTTP request node configuration.
func (f *HTTPRequestNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"connectorId": map[string]any{
				"type":        "string",
				"description": "Connector supplying the base URL, default headers and credentials",
			},
			"endpoint": map[string]any{
				"type":        "string",
				"description": "Path appended to the connector base URL. Supports {{node.result.field}} tokens",
				"examples":    []string{"/users/{{input.userId}}", "/orders?status={{filter.result.status}}"},
			},
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute URL, used when no connector is given",
				"examples":    []string{"https://api.example.com/users"},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Request headers, applied after connector default headers",
			},
			"query": map[string]any{
				"type":        "object",
				"description": "Query string parameters",
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON",
			},
			"timeoutSeconds": map[string]any{
				"type":    "number",
				"default": 30,
				"minimum": 1,
				"maximum": 300,
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":        "number",
						"description": "Number of attempts including the first request",
						"default":     1,
						"minimum":     0,
						"maximum":     10,
					},
					"delay": map[string]any{
						"type":        "number",
						"description": "Delay between attempts in milliseconds",
						"default":     0,
						"minimum":     0,
						"maximum":     30000,
					},
				},
			},
		},
		"examples": []map[string]any{
			{
				"connectorId": "github",
				"endpoint":    "/repos/{{input.repo}}/issues",
				"method":      "GET",
			},
			{
				"url":     "https://hooks.example.com/notify",
				"method":  "POST",
				"body":    map[string]any{"count": "{{count.result}}"},
				"retries": map[string]any{"attempts": 3, "delay": 1000},
			},
		},
	}
}
