// Package redis implements store.Store using Redis for multi-node
// deployments. Runs, personas, and events are stored as JSON values;
// cached selectors use Hashes so success/failure counters update with
// atomic HIncrBy and never lose concurrent increments.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/probelab/pilot/event"
	"github.com/probelab/pilot/persona"
	"github.com/probelab/pilot/run"
	"github.com/probelab/pilot/selector"
)

// Compile-time interface checks.
var (
	_ run.Store      = (*Store)(nil)
	_ selector.Store = (*Store)(nil)
	_ persona.Store  = (*Store)(nil)
	_ event.Store    = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the composite store.Store interface backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis
// client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op — the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
