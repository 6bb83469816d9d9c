package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	t.Run("starts at start+1 and increments", func(t *testing.T) {
		g := New(100)

		assert.Equal(t, uint32(101), g.Next())
		assert.Equal(t, uint32(102), g.Next())
		assert.Equal(t, uint32(103), g.Next())
	})

	t.Run("issues unique ids under concurrency", func(t *testing.T) {
		g := New(0)
		const workers = 16
		const perWorker = 500

		var wg sync.WaitGroup
		results := make(chan uint32, workers*perWorker)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < perWorker; j++ {
					results <- g.Next()
				}
			}()
		}
		wg.Wait()
		close(results)

		seen := make(map[uint32]bool, workers*perWorker)
		for id := range results {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		assert.Len(t, seen, workers*perWorker)
	})
}
