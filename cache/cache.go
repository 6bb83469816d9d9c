// Package cache provides a get-or-fetch cache used by the HTTP session to
// keep recently served file bytes in memory (or in Redis when several
// instances serve the same doc root).
package cache

import (
	"context"
	"time"
)

// FetchFunc loads a value from its source on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cache is a TTL cache with stampede protection: concurrent misses for the
// same key trigger a single fetch. Implementations are safe for concurrent
// use.
type Cache[T any] interface {
	// GetOrFetch returns the cached value for key, fetching and storing it
	// with the given TTL on a miss. A fetch error is returned to every
	// caller waiting on that key and nothing is stored.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: How long a fetched value stays cached
	//   - fetch: Loader invoked on a miss
	//
	// Returns:
	//   - The cached or freshly fetched value
	//   - An error if fetching or the backend fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error)

	// Invalidate drops the entry for key, if present.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key to drop
	Invalidate(ctx context.Context, key string) error

	// Flush drops every entry.
	Flush(ctx context.Context) error

	// Size returns the number of cached entries.
	Size(ctx context.Context) (int, error)
}
