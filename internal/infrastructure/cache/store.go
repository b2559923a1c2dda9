// Package cache provides TTL key-value stores shared by the gateway components.
package cache

import (
	"context"
	"time"
)

// Store is a key-value store with per-entry expiry.
// Expired entries are never returned. Set overwrites any previous value
// and restarts its TTL; concurrent writers to one key resolve last-write-wins.
type Store[V any] interface {
	// Get returns the value stored under key.
	// The boolean is false on a miss, including an expired entry.
	Get(ctx context.Context, key string) (V, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Stats holds store counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}
