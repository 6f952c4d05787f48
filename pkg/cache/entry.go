// Package cache provides a bounded in-memory store for upstream responses
// with per-entry TTL and LRU eviction.
package cache

import (
	"time"
)

// Entry represents a cached upstream response. The value is opaque to the
// cache; callers decide how to interpret it.
type Entry struct {
	// Value is the response payload
	Value []byte

	// CachedAt is when the value was stored
	CachedAt time.Time

	// TTL is how long the entry stays fresh after CachedAt
	TTL time.Duration
}

// IsExpired returns true if the entry is no longer fresh.
func (e *Entry) IsExpired() bool {
	return time.Since(e.CachedAt) >= e.TTL
}

// Remaining returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) Remaining() time.Duration {
	rem := e.TTL - time.Since(e.CachedAt)
	if rem < 0 {
		return 0
	}
	return rem
}
