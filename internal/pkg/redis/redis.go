// Package redis connects to Redis and provides a lease-style distributed lock.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// ErrEmptyURL is returned by Connect when no URL is configured.
var ErrEmptyURL = errors.New("empty redis url")

// Config contains Redis connection configuration.
type Config struct {
	URL             string
	ConnectTimeout  time.Duration
	ConnectAttempts int
}

// Connect parses cfg.URL and returns a client that answered PING.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout
	}

	client := redis.NewClient(opts)
	err = retry.Do(ctx, "connect to redis", cfg.ConnectAttempts, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
