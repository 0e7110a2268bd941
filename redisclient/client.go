// Package redisclient connects to Redis and exposes a byte-oriented
// key-value view with per-key revisions, matching the shape of the NATS KV
// adapter so either can back the widget store.
package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/semwidgets/errors"
)

// DefaultDialTimeout bounds the initial ping.
const DefaultDialTimeout = 5 * time.Second

// Options describes a single Redis endpoint.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// Connect opens a client for opts and pings it. The caller owns the client.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "redisclient", "Connect", "addr is required")
	}
	if opts.DB < 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "redisclient", "Connect", "db cannot be negative")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(errors.ErrConnectionTimeout, "redisclient", "Connect", "ping "+opts.Addr+": "+err.Error())
	}
	return client, nil
}

// Ping reports whether client answers within timeout.
func Ping(ctx context.Context, client redis.UniversalClient, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
