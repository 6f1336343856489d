// Package faststore provides the shared low-latency key/value store backing
// exact-match caching, session context, and quota counters. Production runs
// on Redis; a local in-process implementation serves tests and degraded mode.
package faststore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist or has expired.
var ErrNotFound = errors.New("faststore: key not found")

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a TTL-aware key/value store with an atomic bounded counter.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrWithCeiling atomically adds delta to the counter at key unless the
	// result would exceed ceiling. Returns the counter value after the call
	// and whether the increment was applied. The key expires after ttl when
	// first created.
	IncrWithCeiling(ctx context.Context, key string, delta, ceiling int64, ttl time.Duration) (int64, bool, error)

	// GetCounter returns the current counter value, zero when missing.
	GetCounter(ctx context.Context, key string) (int64, error)

	// Expire resets the TTL on key (sliding expiry).
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
