package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/models"
	"github.com/robfig/cron/v3"
)

// ConnectorLister lists stored connectors.
type ConnectorLister interface {
	Connectors(ctx context.Context) ([]*models.Connector, error)
}

// Refresher periodically refreshes OAuth2 tokens that are about to expire, so flows
// rarely pay for a refresh on the request path.
type Refresher struct {
	resolver *Resolver
	lister   ConnectorLister
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

func NewRefresher(resolver *Resolver, lister ConnectorLister, schedule string, logger *slog.Logger) (*Refresher, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule '%s': %w", schedule, err)
	}

	return &Refresher{
		resolver: resolver,
		lister:   lister,
		schedule: schedule,
		logger:   logger.With("module", "token_refresher"),
	}, nil
}

func (r *Refresher) Start(ctx context.Context) error {
	logger := cronLogger{logger: r.logger}

	r.cron = cron.New(
		cron.WithLogger(logger),
		cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		),
	)

	_, err := r.cron.AddFunc(r.schedule, func() {
		_, _ = r.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule token refresh: %w", err)
	}

	r.cron.Start()
	r.logger.Info("Token refresher started", "schedule", r.schedule)

	return nil
}

func (r *Refresher) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
		r.logger.Info("Token refresher stopped")
	}
}

// Sweep refreshes every authorized oauth2 connector inside the refresh buffer and
// returns how many tokens were issued.
func (r *Refresher) Sweep(ctx context.Context) (int, error) {
	connectors, err := r.lister.Connectors(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list connectors", "error", err)

		return 0, err
	}

	refreshed := 0

	for _, connector := range connectors {
		if connector.AuthType != models.AuthTypeOAuth2 || connector.AuthConfig.AccessToken == "" {
			continue
		}

		_, issued, err := r.resolver.MaybeRefresh(ctx, connector)
		if err != nil {
			r.logger.WarnContext(ctx, "Scheduled refresh failed", "connector_id", connector.ID, "error", err)

			continue
		}

		if issued {
			refreshed++
		}
	}

	r.logger.DebugContext(ctx, "Token sweep finished", "connectors", len(connectors), "refreshed", refreshed)

	return refreshed, nil
}

// cronLogger routes cron's scheduler messages into slog. Routine scheduler chatter is
// logged at debug level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
