package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/connectors"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// UseRequest is a one-off call through a stored or inline connector.
type UseRequest struct {
	ConnectorID string
	Connector   *models.Connector
	Endpoint    string
	Method      string
	Data        any
	Headers     map[string]string
	Query       map[string]string
}

// TokenResponse is the token state of a connector after a refresh.
type TokenResponse struct {
	Success        bool   `json:"success"`
	AccessToken    string `json:"accessToken"`
	RefreshToken   string `json:"refreshToken,omitempty"`
	TokenType      string `json:"tokenType"`
	TokenExpiresAt string `json:"tokenExpiresAt"`
}

type Connector struct {
	repository persistence.ConnectorRepository
	client     *connectors.Client
	resolver   *auth.Resolver
	validate   *validator.Validate
}

// NewConnector creates a new connector service.
func NewConnector(repository persistence.ConnectorRepository, client *connectors.Client, resolver *auth.Resolver) *Connector {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(validateOAuth2Connector, models.Connector{})

	return &Connector{
		repository: repository,
		client:     client,
		resolver:   resolver,
		validate:   validate,
	}
}

// validateOAuth2Connector requires the token endpoint and client id of oauth2 connectors.
func validateOAuth2Connector(sl validator.StructLevel) {
	connector, ok := sl.Current().Interface().(models.Connector)
	if !ok || connector.AuthType != models.AuthTypeOAuth2 {
		return
	}

	if connector.AuthConfig.TokenURL == "" {
		sl.ReportError(connector.AuthConfig.TokenURL, "AuthConfig.TokenURL", "TokenURL", "required_oauth2", "")
	}

	if connector.AuthConfig.ClientID == "" {
		sl.ReportError(connector.AuthConfig.ClientID, "AuthConfig.ClientID", "ClientID", "required_oauth2", "")
	}
}

// Create validates and stores a connector. The returned copy has its secrets removed.
func (c *Connector) Create(ctx context.Context, connector *models.Connector) (*models.Connector, error) {
	err := c.check("Create", connector)
	if err != nil {
		return nil, err
	}

	err = c.repository.SaveConnector(ctx, connector)
	if err != nil {
		return nil, fmt.Errorf("failed to save connector: %w", err)
	}

	return connector.Redacted(), nil
}

// Get returns a connector with its secrets removed.
func (c *Connector) Get(ctx context.Context, id string) (*models.Connector, error) {
	connector, err := c.repository.ConnectorByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return connector.Redacted(), nil
}

// Use sends a request through a connector. A response with a non-2xx status is not an error.
func (c *Connector) Use(ctx context.Context, req UseRequest) (*connectors.Response, error) {
	connector, err := c.resolve(ctx, "Use", req.ConnectorID, req.Connector)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	return c.client.Do(ctx, connector, connectors.Request{
		Method:   method,
		Endpoint: req.Endpoint,
		Headers:  req.Headers,
		Query:    req.Query,
		Data:     req.Data,
	})
}

// Test checks that a connector can authenticate and, optionally, reach endpoint.
func (c *Connector) Test(ctx context.Context, connectorID string, inline *models.Connector, endpoint string) (*connectors.TestResult, error) {
	connector, err := c.resolve(ctx, "Test", connectorID, inline)
	if err != nil {
		return nil, err
	}

	return c.client.Test(ctx, connector, endpoint), nil
}

// Refresh forces a new OAuth2 token for a stored connector.
func (c *Connector) Refresh(ctx context.Context, id string) (*TokenResponse, error) {
	connector, err := c.oauthConnector(ctx, "Refresh", id)
	if err != nil {
		return nil, err
	}

	refreshed, err := c.resolver.Refresh(ctx, connector)
	if err != nil {
		return nil, err
	}

	tokens := refreshed.AuthConfig.Tokens
	response := &TokenResponse{
		Success:      true,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
	}

	if tokens.TokenExpiresAt != nil {
		response.TokenExpiresAt = tokens.TokenExpiresAt.UTC().Format(time.RFC3339)
	}

	return response, nil
}

// AuthorizeURL returns the provider URL that starts the authorization-code flow.
func (c *Connector) AuthorizeURL(ctx context.Context, id, state string) (string, error) {
	connector, err := c.oauthConnector(ctx, "AuthorizeURL", id)
	if err != nil {
		return "", err
	}

	return c.resolver.AuthCodeURL(connector, state)
}

// Callback completes the authorization-code flow by exchanging code for tokens.
func (c *Connector) Callback(ctx context.Context, id, code string) (*models.Connector, error) {
	if code == "" {
		return nil, NewValidationError("Callback", "code_required", "authorization code is required", ErrInvalidRequest)
	}

	connector, err := c.oauthConnector(ctx, "Callback", id)
	if err != nil {
		return nil, err
	}

	updated, err := c.resolver.Exchange(ctx, connector, code)
	if err != nil {
		return nil, err
	}

	return updated.Redacted(), nil
}

func (c *Connector) resolve(ctx context.Context, op, id string, inline *models.Connector) (*models.Connector, error) {
	switch {
	case id != "":
		return c.repository.ConnectorByID(ctx, id)
	case inline != nil:
		err := c.check(op, inline)
		if err != nil {
			return nil, err
		}

		return inline, nil
	default:
		return nil, NewValidationError(op, "connector_required", ErrConnectorRequired.Error(), ErrConnectorRequired)
	}
}

func (c *Connector) oauthConnector(ctx context.Context, op, id string) (*models.Connector, error) {
	connector, err := c.repository.ConnectorByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if connector.AuthType != models.AuthTypeOAuth2 {
		return nil, NewValidationError(op, "not_oauth2", fmt.Sprintf("connector %s does not use oauth2", id), ErrNotOAuth2)
	}

	return connector, nil
}

func (c *Connector) check(op string, connector *models.Connector) error {
	if connector == nil {
		return NewValidationError(op, "connector_required", ErrConnectorRequired.Error(), ErrConnectorRequired)
	}

	err := c.validate.Struct(connector)
	if err != nil {
		return NewValidationError(op, "invalid_connector", err.Error(), ErrInvalidRequest)
	}

	return nil
}
