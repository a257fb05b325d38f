package cache_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spongetheory/marketplace/pkg/cache"
)

func TestLRU_Capacity(t *testing.T) {
	t.Parallel()

	var evicted []string
	c := cache.New(2, cache.WithEvictCallback(func(k string, _ int) { evicted = append(evicted, k) }))
	c.Put("a", 1, 0)
	c.Put("b", 2, 0)
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", 3, 0)
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRU_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.New(10, cache.WithClock[string, string](func() time.Time { return now }))
	c.Put("nonce", "user-1", time.Minute)
	c.Put("forever", "x", 0)

	v, ok := c.Get("nonce")
	require.True(t, ok)
	assert.Equal(t, "user-1", v)

	now = now.Add(time.Minute)
	_, ok = c.Get("nonce")
	assert.False(t, ok, "entry expires at its deadline")
	_, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Take(t *testing.T) {
	t.Parallel()

	t.Run("single use", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, string](10)
		c.Put("k", "v", time.Minute)

		v, ok := c.Take("k")
		require.True(t, ok)
		assert.Equal(t, "v", v)
		_, ok = c.Take("k")
		assert.False(t, ok)
	})

	t.Run("one winner under concurrency", func(t *testing.T) {
		t.Parallel()
		c := cache.New[string, int](10)
		c.Put("k", 1, time.Minute)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := c.Take("k"); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { cache.New[string, int](0) })
}
