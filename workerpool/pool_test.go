package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	t.Run("runs submitted tasks", func(t *testing.T) {
		p := New(2)
		p.Start()
		defer p.Stop()

		var ran atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			require.NoError(t, p.Submit(func() {
				defer wg.Done()
				ran.Add(1)
			}))
		}
		wg.Wait()

		assert.Equal(t, int32(20), ran.Load())
	})

	t.Run("ignores nil tasks", func(t *testing.T) {
		p := New(1)
		p.Start()
		defer p.Stop()

		assert.NoError(t, p.Submit(nil))
	})

	t.Run("rejects tasks after Stop", func(t *testing.T) {
		p := New(1)
		p.Start()
		p.Stop()

		assert.ErrorIs(t, p.Submit(func() {}), ErrStopped)
		assert.ErrorIs(t, p.Do(func() {}), ErrStopped)
	})
}

func TestDo(t *testing.T) {
	t.Run("blocks until the task has run", func(t *testing.T) {
		p := New(1)
		p.Start()
		defer p.Stop()

		ran := false
		require.NoError(t, p.Do(func() {
			time.Sleep(20 * time.Millisecond)
			ran = true
		}))

		assert.True(t, ran)
	})

	t.Run("serializes steps of one caller", func(t *testing.T) {
		p := New(4)
		p.Start()
		defer p.Stop()

		// A single caller issuing Do in a loop must never observe its own
		// steps overlapping, regardless of pool size.
		var inside atomic.Int32
		for i := 0; i < 10; i++ {
			require.NoError(t, p.Do(func() {
				assert.Equal(t, int32(1), inside.Add(1))
				inside.Add(-1)
			}))
		}
	})
}

func TestRunOne(t *testing.T) {
	t.Run("pumps queued tasks manually with zero workers", func(t *testing.T) {
		p := New(0)
		p.Start()

		var ran atomic.Int32
		for i := 0; i < 3; i++ {
			require.NoError(t, p.Submit(func() { ran.Add(1) }))
		}

		assert.Equal(t, 3, p.Pending())
		assert.True(t, p.RunOne())
		assert.True(t, p.RunOne())
		assert.True(t, p.RunOne())
		assert.False(t, p.RunOne())
		assert.Equal(t, int32(3), ran.Load())
	})

	t.Run("unblocks a Do caller", func(t *testing.T) {
		p := New(0)
		p.Start()

		done := make(chan error, 1)
		go func() {
			done <- p.Do(func() {})
		}()

		// Pump until the queued task shows up and runs.
		require.Eventually(t, func() bool {
			return p.RunOne()
		}, time.Second, time.Millisecond)

		require.NoError(t, <-done)
	})
}

func TestStop(t *testing.T) {
	t.Run("drains queued tasks before returning", func(t *testing.T) {
		p := New(1)
		p.Start()

		var ran atomic.Int32
		block := make(chan struct{})
		require.NoError(t, p.Submit(func() { <-block }))
		for i := 0; i < 5; i++ {
			require.NoError(t, p.Submit(func() { ran.Add(1) }))
		}

		close(block)
		p.Stop()

		assert.Equal(t, int32(5), ran.Load())
		assert.Equal(t, 0, p.Pending())
	})

	t.Run("is idempotent", func(t *testing.T) {
		p := New(2)
		p.Start()

		assert.NotPanics(t, func() {
			p.Stop()
			p.Stop()
		})
	})
}

func TestProgress(t *testing.T) {
	t.Run("more callers than workers all make progress", func(t *testing.T) {
		const workers = 2
		const callers = 10

		p := New(workers)
		p.Start()
		defer p.Stop()

		var completed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 5; j++ {
					if err := p.Do(func() {
						time.Sleep(time.Millisecond)
					}); err == nil {
						completed.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(callers*5), completed.Load())
	})
}
