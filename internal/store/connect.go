package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"secrets-backend/internal/config"
)

// Connect opens the store, retrying with exponential backoff until maxWait
// has passed. Zero maxWait tries once.
func Connect(ctx context.Context, cfg config.DatabaseConfig, maxWait time.Duration) (*Store, error) {
	if maxWait <= 0 {
		return New(ctx, cfg)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = maxWait

	var s *Store
	err := backoff.RetryNotify(
		func() error {
			var err error
			s, err = New(ctx, cfg)
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			log.Printf("WARN: database not ready, retrying in %s: %v", next.Round(time.Millisecond), err)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	return s, nil
}
