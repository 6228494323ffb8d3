package models

import "time"

// AuthType selects how a connector authenticates outbound requests.
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeOAuth2 AuthType = "oauth2"
)

// OAuth2 grant types.
const (
	GrantClientCredentials = "client_credentials"
	GrantAuthorizationCode = "authorization_code"
)

// Token placement.
const (
	TokenLocationHeader = "header"
	TokenLocationBody   = "body"
)

// Client authentication styles at the token endpoint.
const (
	ClientAuthBody   = "body"
	ClientAuthHeader = "header"
)

// Connector bundles a base URL with credentials for an external API.
type Connector struct {
	ID             string            `json:"id"`
	Owner          string            `json:"owner"`
	Name           string            `json:"name"                     validate:"required"`
	BaseURL        string            `json:"baseUrl"                  validate:"required,url"`
	AuthType       AuthType          `json:"authType"                 validate:"required,oneof=none basic oauth2"`
	AuthConfig     AuthConfig        `json:"authConfig"`
	DefaultHeaders map[string]string `json:"defaultHeaders,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// AuthConfig holds the credentials of a connector. Which fields apply depends on AuthType.
type AuthConfig struct {
	// basic
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// oauth2
	TokenURL           string   `json:"tokenUrl,omitempty"`
	AuthorizationURL   string   `json:"authorizationUrl,omitempty"   validate:"required_if=GrantType authorization_code"`
	RedirectURI        string   `json:"redirectUri,omitempty"        validate:"required_if=GrantType authorization_code"`
	ClientID           string   `json:"clientId,omitempty"`
	ClientSecret       string   `json:"clientSecret,omitempty"`
	Scopes             []string `json:"scopes,omitempty"`
	GrantType          string   `json:"grantType,omitempty"          validate:"omitempty,oneof=client_credentials authorization_code"`
	ClientAuthStyle    string   `json:"clientAuthStyle,omitempty"    validate:"omitempty,oneof=body header"`
	TokenLocation      string   `json:"tokenLocation,omitempty"      validate:"omitempty,oneof=header body"`
	HeaderName         string   `json:"headerName,omitempty"`
	HeaderPrefix       *string  `json:"headerPrefix,omitempty"`
	PreserveHeaderCase bool     `json:"preserveHeaderCase,omitempty"`
	BodyField          string   `json:"bodyField,omitempty"`

	Tokens
}

// Tokens is the cached OAuth2 token state of a connector.
type Tokens struct {
	AccessToken    string     `json:"accessToken,omitempty"`
	RefreshToken   string     `json:"refreshToken,omitempty"`
	TokenType      string     `json:"tokenType,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"`
}

// Redacted returns a copy of the connector with secrets removed.
func (c *Connector) Redacted() *Connector {
	redacted := *c
	redacted.AuthConfig.Password = ""
	redacted.AuthConfig.ClientSecret = ""
	redacted.AuthConfig.AccessToken = ""
	redacted.AuthConfig.RefreshToken = ""

	return &redacted
}

// Clone returns a copy of the connector that shares no mutable state with c.
func (c *Connector) Clone() *Connector {
	clone := *c

	if c.DefaultHeaders != nil {
		clone.DefaultHeaders = make(map[string]string, len(c.DefaultHeaders))
		for k, v := range c.DefaultHeaders {
			clone.DefaultHeaders[k] = v
		}
	}

	if c.AuthConfig.Scopes != nil {
		clone.AuthConfig.Scopes = append([]string(nil), c.AuthConfig.Scopes...)
	}

	if c.AuthConfig.HeaderPrefix != nil {
		prefix := *c.AuthConfig.HeaderPrefix
		clone.AuthConfig.HeaderPrefix = &prefix
	}

	if c.AuthConfig.TokenExpiresAt != nil {
		expiresAt := *c.AuthConfig.TokenExpiresAt
		clone.AuthConfig.TokenExpiresAt = &expiresAt
	}

	return &clone
}
