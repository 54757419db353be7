// Package cache provides the read-through TTL cache plugin and its backing
// stores.
package cache

import (
	"context"
	"time"
)

// Store defines the interface for cache backends.
type Store interface {
	// Get retrieves a value, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a single key.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching a glob pattern, where *
	// matches any run of characters.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Clear removes all keys.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config holds common configuration for cache backends.
type Config struct {
	// DefaultTTL applies when a Set passes no TTL.
	DefaultTTL time.Duration
	// Prefix is prepended to all keys.
	Prefix string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "bq:",
	}
}

// ErrCacheMiss is returned when a key is not found.
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss.
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}
