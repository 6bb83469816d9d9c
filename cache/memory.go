package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Memory is the in-process Cache implementation backed by go-cache, with a
// singleflight group collapsing concurrent fetches of the same key.
type Memory[T any] struct {
	store *gocache.Cache
	group singleflight.Group
}

// NewMemory creates an in-memory cache. Expired entries are removed in the
// background every cleanupInterval.
//
// Parameters:
//   - cleanupInterval: Interval between expiry sweeps
//
// Returns:
//   - A new Memory cache
func NewMemory[T any](cleanupInterval time.Duration) *Memory[T] {
	return &Memory[T]{
		store: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cache.
func (m *Memory[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	var zero T

	if val, ok := m.store.Get(key); ok {
		if typed, ok := val.(T); ok {
			return typed, nil
		}
	}

	val, err, _ := m.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have stored the value while we waited
		// for the flight slot.
		if cached, ok := m.store.Get(key); ok {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return zero, err
		}

		m.store.Set(key, fetched, ttl)
		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("cache: unexpected value type for key %s", key)
	}

	return typed, nil
}

// Invalidate implements Cache.
func (m *Memory[T]) Invalidate(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.Delete(key)
	return nil
}

// Flush implements Cache.
func (m *Memory[T]) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.Flush()
	return nil
}

// Size implements Cache.
func (m *Memory[T]) Size(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return m.store.ItemCount(), nil
}
