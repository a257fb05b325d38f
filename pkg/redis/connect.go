package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL   = errors.New("redis: connection URL is empty")
	ErrInvalidURL = errors.New("redis: cannot parse connection URL")
	ErrNotReady   = errors.New("redis: server did not answer in time")
	ErrUnhealthy  = errors.New("redis: ping failed")
)

// probeTimeout bounds one readiness probe.
const probeTimeout = 2 * time.Second

// Connect returns a client once the server answers PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyURL
	}
	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client := redis.NewClient(opts)
	for attempt := 1; ; attempt++ {
		err := client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		if attempt >= max(cfg.RetryAttempts, 1) {
			_ = client.Close()
			return nil, errors.Join(ErrNotReady, err)
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, errors.Join(ErrNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
}

// Healthcheck returns a readiness probe for the client.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		return nil
	}
}
