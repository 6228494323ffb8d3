// Package web provides HTTP request and response types for the flow API.
package web

import "github.com/dukex/conduit/pkg/models"

// CreateFlowRequest represents the request body for creating a new flow.
type CreateFlowRequest struct {
	Name        string         `json:"name"                  validate:"required,min=1"`
	Owner       string         `json:"owner"`
	Nodes       []*models.Node `json:"nodes"                 validate:"dive"`
	Edges       []*models.Edge `json:"edges"                 validate:"dive"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

func (r *CreateFlowRequest) toModel() *models.Flow {
	return &models.Flow{
		Name:        r.Name,
		Owner:       r.Owner,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
		InputSchema: r.InputSchema,
	}
}

// ExecuteFlowRequest represents the request body for starting an execution.
type ExecuteFlowRequest struct {
	Input map[string]any `json:"input"`
}

type ExecuteFlowResponse struct {
	ExecutionID string `json:"executionId"`
}

// UseConnectorRequest proxies one HTTP call through a stored or inline connector.
type UseConnectorRequest struct {
	ConnectorID string            `json:"connectorId,omitempty"`
	Connector   *models.Connector `json:"connector,omitempty"`
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method,omitempty"      validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Data        any               `json:"data,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Query       map[string]string `json:"query,omitempty"`
}

type TestConnectorRequest struct {
	ConnectorID string            `json:"connectorId,omitempty"`
	Connector   *models.Connector `json:"connector,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
}

type OAuthRefreshRequest struct {
	ConnectorID string `json:"connectorId" validate:"required"`
}

type OAuthCallbackRequest struct {
	Code string `json:"code" validate:"required"`
}

type AuthorizeURLResponse struct {
	URL string `json:"url"`
}
