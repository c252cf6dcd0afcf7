package redis

import (
	"context"
	"time"
)

// Client is the subset of Redis operations the Analog Finder's working
// set cache needs: a plain TTL-bounded key/value store plus a
// liveness check, nothing hash/sorted-set/list-shaped.
type Client interface {
	// Set sets a key to a value with an optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get gets the value of a key
	Get(ctx context.Context, key string) (string, error)

	// Expire sets a TTL on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks the connection to Redis
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}
