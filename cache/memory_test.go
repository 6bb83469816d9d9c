package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches on miss and caches the value", func(t *testing.T) {
		c := NewMemory[string](time.Minute)
		calls := 0

		fetch := func(context.Context) (string, error) {
			calls++
			return "payload", nil
		}

		val, err := c.GetOrFetch(ctx, "k", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, "payload", val)

		val, err = c.GetOrFetch(ctx, "k", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, "payload", val)
		assert.Equal(t, 1, calls)
	})

	t.Run("propagates fetch errors without caching", func(t *testing.T) {
		c := NewMemory[string](time.Minute)
		boom := errors.New("boom")
		calls := 0

		fetch := func(context.Context) (string, error) {
			calls++
			return "", boom
		}

		_, err := c.GetOrFetch(ctx, "k", time.Minute, fetch)
		assert.ErrorIs(t, err, boom)

		_, err = c.GetOrFetch(ctx, "k", time.Minute, fetch)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})

	t.Run("expired entries are fetched again", func(t *testing.T) {
		c := NewMemory[string](10 * time.Millisecond)
		var calls atomic.Int32

		fetch := func(context.Context) (string, error) {
			calls.Add(1)
			return "v", nil
		}

		_, err := c.GetOrFetch(ctx, "k", time.Millisecond, fetch)
		require.NoError(t, err)

		assert.Eventually(t, func() bool {
			_, err := c.GetOrFetch(ctx, "k", time.Millisecond, fetch)
			return err == nil && calls.Load() >= 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("collapses concurrent fetches of one key", func(t *testing.T) {
		c := NewMemory[int](time.Minute)
		var calls atomic.Int32
		release := make(chan struct{})

		fetch := func(context.Context) (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				val, err := c.GetOrFetch(ctx, "shared", time.Minute, fetch)
				assert.NoError(t, err)
				assert.Equal(t, 42, val)
			}()
		}

		// Let every goroutine reach the flight before releasing the fetch.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("drops a single key", func(t *testing.T) {
		c := NewMemory[string](time.Minute)
		calls := 0

		fetch := func(context.Context) (string, error) {
			calls++
			return "v", nil
		}

		_, err := c.GetOrFetch(ctx, "k", time.Minute, fetch)
		require.NoError(t, err)
		require.NoError(t, c.Invalidate(ctx, "k"))

		_, err = c.GetOrFetch(ctx, "k", time.Minute, fetch)
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		c := NewMemory[string](time.Minute)
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		assert.Error(t, c.Invalidate(cancelled, "k"))
	})
}

func TestFlush(t *testing.T) {
	ctx := context.Background()

	t.Run("drops every key", func(t *testing.T) {
		c := NewMemory[string](time.Minute)
		fetch := func(context.Context) (string, error) { return "v", nil }

		for _, key := range []string{"a", "b", "c"} {
			_, err := c.GetOrFetch(ctx, key, time.Minute, fetch)
			require.NoError(t, err)
		}

		size, err := c.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, size)

		require.NoError(t, c.Flush(ctx))

		size, err = c.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, size)
	})
}
