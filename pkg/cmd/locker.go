package cmd

import (
	"context"
	"fmt"

	"github.com/dukex/conduit/pkg/auth"
)

// NewResolverOptions configures token refresh locking. An empty redisURL keeps locking
// in process. The returned close function is never nil.
func NewResolverOptions(ctx context.Context, redisURL string) ([]auth.Option, func() error, error) {
	if redisURL == "" {
		return nil, func() error { return nil }, nil
	}

	locker, err := auth.NewRedisLockerFromURL(ctx, redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create token refresh locker: %w", err)
	}

	return []auth.Option{auth.WithLocker(locker)}, locker.Close, nil
}
