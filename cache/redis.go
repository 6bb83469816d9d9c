package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Redis is a Cache implementation storing JSON-encoded values in Redis, for
// deployments where several server instances share one file cache. Fetches
// are still collapsed per process with singleflight; cross-instance
// duplicate fetches are tolerated and last-writer-wins.
type Redis[T any] struct {
	client *redis.Client
	group  singleflight.Group
}

// NewRedis creates a Redis-backed cache using the given client.
//
// Parameters:
//   - client: A configured go-redis client; the cache does not close it
//
// Returns:
//   - A new Redis cache
func NewRedis[T any](client *redis.Client) *Redis[T] {
	return &Redis[T]{client: client}
}

// GetOrFetch implements Cache.
func (r *Redis[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) (T, error) {
	var zero T

	if val, err := r.get(ctx, key); err == nil {
		return val, nil
	} else if !errors.Is(err, redis.Nil) {
		return zero, err
	}

	val, err, _ := r.group.Do(key, func() (interface{}, error) {
		if cached, err := r.get(ctx, key); err == nil {
			return cached, nil
		} else if !errors.Is(err, redis.Nil) {
			return zero, err
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return zero, err
		}

		data, err := json.Marshal(fetched)
		if err != nil {
			return zero, fmt.Errorf("cache: encode value for key %s: %w", key, err)
		}

		if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
			return zero, fmt.Errorf("cache: store key %s: %w", key, err)
		}

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

// get loads and decodes one entry; redis.Nil passes through for misses.
func (r *Redis[T]) get(ctx context.Context, key string) (T, error) {
	var zero T

	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, err
		}

		return zero, fmt.Errorf("cache: load key %s: %w", key, err)
	}

	var val T
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return zero, fmt.Errorf("cache: decode value for key %s: %w", key, err)
	}

	return val, nil
}

// Invalidate implements Cache.
func (r *Redis[T]) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: delete key %s: %w", key, err)
	}

	return nil
}

// Flush implements Cache.
func (r *Redis[T]) Flush(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("cache: flush: %w", err)
	}

	return nil
}

// Size implements Cache.
func (r *Redis[T]) Size(ctx context.Context) (int, error) {
	n, err := r.client.DBSize(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: size: %w", err)
	}

	return int(n), nil
}
