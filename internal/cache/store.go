// Package cache is a durable, TTL-bounded key/value store for expensive
// derived artifacts (AI summaries, extracted subtitle text).
//
// Every entry carries an identity field — the canonical content id or exact
// source URL the value was derived from. Get verifies it against the
// caller's expectation, so a key derivation collision or key reuse yields a
// miss instead of wrong data.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store abstracts the durable cache.
// Implementations: SQLite (default), Redis, or in-memory (tests / cacheless runs).
type Store interface {
	// Get returns the cached value for key, or ok=false on a miss.
	// A present entry counts as a miss when its identity differs from the
	// given one or its TTL has elapsed.
	Get(ctx context.Context, key, identity string) (json.RawMessage, bool, error)

	// Put overwrites unconditionally, stamping the current time.
	Put(ctx context.Context, key string, value json.RawMessage, identity string, ttl time.Duration) error

	// Sweep removes all entries whose key starts with prefix and returns the
	// count removed. Administrative only — never called on the request path.
	Sweep(ctx context.Context, prefix string) (int, error)

	Close() error
}

// entry is the stored shape shared by the map and Redis backends.
type entry struct {
	Value    json.RawMessage `json:"value"`
	Identity string          `json:"identity"`
	CachedAt int64           `json:"cached_at"` // unix seconds
	TTL      int64           `json:"ttl"`       // seconds
}

func (e entry) live(now time.Time, identity string) bool {
	if e.Identity != identity {
		return false
	}
	return now.Unix()-e.CachedAt <= e.TTL
}
