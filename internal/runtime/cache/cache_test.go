package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutGetInvalidate(t *testing.T) {
	c := New[int64, string](4, time.Minute)

	c.Put(1, "one")
	got, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", got)

	c.Invalidate(1)
	_, ok = c.Get(1)
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](2, 0)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Get(1)
	c.Put(3, 3)

	assert.True(t, c.Contains(1))
	assert.False(t, c.Contains(2))
	assert.True(t, c.Contains(3))
	assert.Equal(t, 2, c.Len())
}

func TestEntriesExpire(t *testing.T) {
	c := New[string, int](8, 20*time.Millisecond)
	c.Put("a", 1)

	assert.Eventually(t, func() bool {
		_, ok := c.Get("a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](64, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(base*100+j, j)
				c.Get(base*100 + j)
				c.Invalidate(base*100 + j - 1)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}

func TestNonPositiveSizeIsClamped(t *testing.T) {
	c := New[int, int](0, 0)
	c.Put(1, 1)
	assert.Equal(t, 1, c.Len())
}
