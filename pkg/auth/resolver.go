// Package auth resolves connector credentials for outbound requests and manages the
// OAuth2 token lifecycle of connectors.
package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshBuffer is how long before expiry a token is considered stale.
	DefaultRefreshBuffer = 5 * time.Minute

	// DefaultTokenLifetime applies when a token response carries no expires_in.
	DefaultTokenLifetime = time.Hour

	lockTTL = 30 * time.Second
)

// ConnectorStore reads and persists connector token state.
type ConnectorStore interface {
	ConnectorByID(ctx context.Context, id string) (*models.Connector, error)
	UpdateConnectorTokens(ctx context.Context, id string, tokens models.Tokens) error
}

// Target is the outbound request credentials are applied to.
type Target struct {
	Header http.Header
	// Body is the JSON payload. Body token placement requires nil or a JSON object.
	Body any
}

// Authorization reports the outcome of Authorize.
type Authorization struct {
	// Connector is the connector as used, carrying refreshed tokens when TokenRefreshed is set.
	Connector      *models.Connector
	TokenRefreshed bool
}

type Resolver struct {
	httpClient *http.Client
	buffer     time.Duration
	now        func() time.Time
	store      ConnectorStore
	locker     Locker
	logger     *slog.Logger
	group      singleflight.Group
}

type Option func(*Resolver)

func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.httpClient = client }
}

func WithRefreshBuffer(buffer time.Duration) Option {
	return func(r *Resolver) { r.buffer = buffer }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithStore persists refreshed tokens and reloads connectors after a refresh lock is taken.
func WithStore(store ConnectorStore) Option {
	return func(r *Resolver) { r.store = store }
}

// WithLocker serialises refreshes of a connector across processes.
func WithLocker(locker Locker) Option {
	return func(r *Resolver) { r.locker = locker }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		buffer:     DefaultRefreshBuffer,
		now:        time.Now,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With("module", "auth")

	return r
}

// Authorize applies the credentials of connector to target, refreshing OAuth2 tokens first
// when needed. Failures are AuthError and leave target untouched.
func (r *Resolver) Authorize(ctx context.Context, connector *models.Connector, target *Target) (*Authorization, error) {
	if connector == nil {
		return &Authorization{}, nil
	}

	if target.Header == nil {
		target.Header = http.Header{}
	}

	switch connector.AuthType {
	case models.AuthTypeNone, "":
		return &Authorization{Connector: connector}, nil

	case models.AuthTypeBasic:
		credentials := connector.AuthConfig.Username + ":" + connector.AuthConfig.Password
		target.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(credentials)))

		return &Authorization{Connector: connector}, nil

	case models.AuthTypeOAuth2:
		current, refreshed, err := r.MaybeRefresh(ctx, connector)
		if err != nil {
			return nil, err
		}

		err = placeToken(current, target)
		if err != nil {
			return nil, err
		}

		return &Authorization{Connector: current, TokenRefreshed: refreshed}, nil

	default:
		return nil, protocol.Errorf(protocol.KindAuth, "unsupported auth type %q", connector.AuthType)
	}
}

// NeedsRefresh reports whether the connector's access token is missing or expires within the buffer.
func (r *Resolver) NeedsRefresh(connector *models.Connector) bool {
	tokens := connector.AuthConfig.Tokens
	if tokens.AccessToken == "" || tokens.TokenExpiresAt == nil {
		return true
	}

	return tokens.TokenExpiresAt.Sub(r.now()) <= r.buffer
}

// MaybeRefresh returns the connector unchanged when its token is fresh, otherwise a copy
// carrying a new token. The boolean reports whether a token was issued.
func (r *Resolver) MaybeRefresh(ctx context.Context, connector *models.Connector) (*models.Connector, bool, error) {
	if connector.AuthType != models.AuthTypeOAuth2 || !r.NeedsRefresh(connector) {
		return connector, false, nil
	}

	return r.refresh(ctx, connector, false)
}

// Refresh issues a new token regardless of the current expiry.
func (r *Resolver) Refresh(ctx context.Context, connector *models.Connector) (*models.Connector, error) {
	if connector.AuthType != models.AuthTypeOAuth2 {
		return nil, protocol.Errorf(protocol.KindAuth, "connector %s does not use oauth2", connector.ID)
	}

	refreshed, _, err := r.refresh(ctx, connector, true)

	return refreshed, err
}

type refreshOutcome struct {
	connector *models.Connector
	issued    bool
}

func (r *Resolver) refresh(ctx context.Context, connector *models.Connector, force bool) (*models.Connector, bool, error) {
	key := connector.ID
	if key == "" {
		key = fmt.Sprintf("anonymous:%p", connector)
	}

	if force {
		key = "force:" + key
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.refreshLocked(ctx, connector, force)
	})
	if err != nil {
		return nil, false, err
	}

	outcome := v.(*refreshOutcome)

	return outcome.connector.Clone(), outcome.issued, nil
}

func (r *Resolver) refreshLocked(ctx context.Context, connector *models.Connector, force bool) (*refreshOutcome, error) {
	logger := log.FromContext(ctx, r.logger).With("connector_id", connector.ID)

	if r.locker != nil && connector.ID != "" {
		release, err := r.locker.Acquire(ctx, "conduit:connector-refresh:"+connector.ID, lockTTL)
		if err != nil {
			return nil, protocol.NewError(protocol.KindAuth, fmt.Errorf("failed to acquire refresh lock: %w", err))
		}

		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.WarnContext(ctx, "Failed to release refresh lock", "error", err)
			}
		}()
	}

	current := connector
	if r.store != nil && connector.ID != "" {
		reloaded, err := r.store.ConnectorByID(ctx, connector.ID)
		if err == nil && reloaded != nil {
			current = reloaded
			if !force && !r.NeedsRefresh(current) {
				logger.DebugContext(ctx, "Token refreshed by another worker")

				return &refreshOutcome{connector: current, issued: false}, nil
			}
		}
	}

	tokens, err := r.fetchToken(ctx, current)
	if err != nil {
		logger.WarnContext(ctx, "Token refresh failed", "error", err)

		return nil, err
	}

	updated := current.Clone()
	updated.AuthConfig.Tokens = *tokens

	if r.store != nil && updated.ID != "" {
		err = r.store.UpdateConnectorTokens(ctx, updated.ID, *tokens)
		if err != nil {
			logger.WarnContext(ctx, "Failed to persist refreshed token", "error", err)
		}
	}

	logger.InfoContext(ctx, "Token refreshed", "expires_at", tokens.TokenExpiresAt)

	return &refreshOutcome{connector: updated, issued: true}, nil
}
