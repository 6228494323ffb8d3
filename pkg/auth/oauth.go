package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrMissingRefreshToken is returned when an authorization-code connector has never
// completed the authorize step.
var ErrMissingRefreshToken = errors.New("no refresh token stored; complete the authorization step first")

func (r *Resolver) fetchToken(ctx context.Context, connector *models.Connector) (*models.Tokens, error) {
	cfg := connector.AuthConfig
	if cfg.TokenURL == "" {
		return nil, protocol.Errorf(protocol.KindAuth, "connector %s has no token url", connector.ID)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	var (
		token *oauth2.Token
		err   error
	)

	switch grantType(cfg) {
	case models.GrantAuthorizationCode:
		if cfg.RefreshToken == "" {
			return nil, protocol.NewError(protocol.KindAuth, ErrMissingRefreshToken)
		}

		source := oauthConfig(cfg).TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		token, err = source.Token()

	default:
		credentials := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
			AuthStyle:    authStyle(cfg),
		}
		token, err = credentials.Token(ctx)
	}

	if err != nil {
		return nil, protocol.NewError(protocol.KindAuth, fmt.Errorf("token request failed: %w", err))
	}

	return r.tokensFrom(token, cfg.RefreshToken), nil
}

// AuthCodeURL returns the provider URL a user visits to authorize the connector.
func (r *Resolver) AuthCodeURL(connector *models.Connector, state string) (string, error) {
	if connector.AuthType != models.AuthTypeOAuth2 || connector.AuthConfig.AuthorizationURL == "" {
		return "", protocol.Errorf(protocol.KindAuth, "connector %s has no authorization url", connector.ID)
	}

	return oauthConfig(connector.AuthConfig).AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange trades an authorization code for tokens and returns the updated connector.
func (r *Resolver) Exchange(ctx context.Context, connector *models.Connector, code string) (*models.Connector, error) {
	if connector.AuthType != models.AuthTypeOAuth2 {
		return nil, protocol.Errorf(protocol.KindAuth, "connector %s does not use oauth2", connector.ID)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	token, err := oauthConfig(connector.AuthConfig).Exchange(ctx, code)
	if err != nil {
		return nil, protocol.NewError(protocol.KindAuth, fmt.Errorf("code exchange failed: %w", err))
	}

	tokens := r.tokensFrom(token, connector.AuthConfig.RefreshToken)

	updated := connector.Clone()
	updated.AuthConfig.Tokens = *tokens

	if r.store != nil && updated.ID != "" {
		err = r.store.UpdateConnectorTokens(ctx, updated.ID, *tokens)
		if err != nil {
			return nil, fmt.Errorf("failed to persist tokens: %w", err)
		}
	}

	return updated, nil
}

func (r *Resolver) tokensFrom(token *oauth2.Token, previousRefreshToken string) *models.Tokens {
	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = r.now().Add(DefaultTokenLifetime)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}

	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &models.Tokens{
		AccessToken:    token.AccessToken,
		RefreshToken:   refreshToken,
		TokenType:      tokenType,
		TokenExpiresAt: &expiresAt,
	}
}

func oauthConfig(cfg models.AuthConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthorizationURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: authStyle(cfg),
		},
	}
}

func grantType(cfg models.AuthConfig) string {
	if cfg.GrantType != "" {
		return cfg.GrantType
	}

	if cfg.RefreshToken != "" {
		return models.GrantAuthorizationCode
	}

	return models.GrantClientCredentials
}

func authStyle(cfg models.AuthConfig) oauth2.AuthStyle {
	if cfg.ClientAuthStyle == models.ClientAuthHeader {
		return oauth2.AuthStyleInHeader
	}

	return oauth2.AuthStyleInParams
}
