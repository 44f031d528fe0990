package cache

import (
	"context"
	"time"
)

// Cache defines the key-value operations the interview service needs.
// Redis is the only production backend; tests use miniredis behind the same client.
type Cache interface {
	// Get retrieves the value for the given key.
	// A missing key yields "" and a nil error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Expire refreshes the TTL of a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// SetNX sets the key only if it does not exist and reports whether it did
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Incr increments the integer value of a key
	Incr(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time to live of a key
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}
