// Package cache stores resolved archive links keyed by normalized URL.
//
// Entries are positive-only: a present key means the link was verified, an
// absent key means nothing is known. Expiry is enforced by the store.
package cache

import (
	"context"
	"time"

	"github.com/JakeFAU/unbloq/internal/normalize"
)

// DefaultTTL is how long a resolved link stays cached.
const DefaultTTL = time.Hour

// KeyPrefix namespaces archive entries in the shared store.
const KeyPrefix = "archive:"

// Store is a key-value cache with per-entry TTL.
type Store interface {
	// Get returns the value and true on a hit, "" and false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value under key, expiring after ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Key derives the cache key for a normalized URL.
func Key(u normalize.URL) string {
	return KeyPrefix + normalize.EncodeURIComponent(u.String())
}
