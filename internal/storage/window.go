package storage

import (
	"context"
	"time"
)

// Snapshot is the outcome of one atomic window operation.
type Snapshot struct {
	// Allowed reports whether a Record call admitted the request. It is
	// always false for Peek; callers derive admissibility from Current.
	Allowed bool
	// Current is the number of entries in the active window, including the
	// one just recorded when Allowed is true.
	Current int
	// Oldest is the unix-millisecond timestamp of the oldest surviving
	// entry, or 0 when the window is empty.
	Oldest int64
}

// WindowStore is the backing store for sliding-window counters. All three
// steps of Record (purge expired entries, count, conditionally insert) must
// execute atomically per key so concurrent callers across instances cannot
// both be admitted into a full window.
type WindowStore interface {
	// Record purges entries older than the window, counts the survivors and,
	// if the count is below limit, records the attempt and refreshes the
	// key's expiry. Rejected attempts are not recorded.
	Record(ctx context.Context, key string, limit int, window time.Duration) (Snapshot, error)

	// Peek returns the current window state without recording an attempt.
	Peek(ctx context.Context, key string, window time.Duration) (Snapshot, error)

	// Reset removes all recorded entries for the given key.
	Reset(ctx context.Context, key string) error

	// Close releases store resources.
	Close() error
}

// Config defines common configuration for window stores.
type Config struct {
	// KeyPrefix namespaces store keys.
	KeyPrefix string
	// CleanupInterval is how often in-process stores sweep idle keys.
	CleanupInterval time.Duration
	// MaxKeys caps the number of tracked keys for in-process stores
	// (0 = unlimited).
	MaxKeys int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		KeyPrefix:       "ratelimit:",
		CleanupInterval: 5 * time.Minute,
		MaxKeys:         10000, // prevent unbounded memory growth
	}
}
