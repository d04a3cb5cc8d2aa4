package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](2, 0)
	c.Put("a", 1)
	c.Put("b", 2)

	_, ok := c.Get("a") // a becomes most recent
	assert.True(t, ok)

	c.Put("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "b should be evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRU_UpdateKeepsSize(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](2, 0)
	c.Put("a", 1)
	c.Put("a", 10)

	v, _ := c.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_Expiry(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := NewLRU[string, int](4, time.Minute)
	c.now = func() time.Time { return now }

	c.Put("a", 1)
	now = now.Add(30 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_RemoveAndPurge(t *testing.T) {
	t.Parallel()

	c := NewLRU[int, string](4, 0)
	c.Put(1, "x")
	c.Put(2, "y")

	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestLRU_PanicsOnZeroCapacity(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewLRU[string, int](0, 0) })
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	c := NewLRU[int, int](16, 0)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				c.Put(i*100+j, j)
				c.Get(j)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
