package lineindex

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_HitAndRebuildOnChange(t *testing.T) {
	c := NewCache(4)
	a := c.Get("a.cc", []byte("x\ny"))
	assert.Same(t, a, c.Get("a.cc", []byte("x\ny")))

	changed := c.Get("a.cc", []byte("x\ny\nz"))
	assert.NotSame(t, a, changed)
	assert.Equal(t, 3, changed.LineCount())

	hits, misses := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 2, misses)
	assert.Equal(t, 1, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	a := c.Get("a", []byte("a"))
	c.Get("b", []byte("b"))
	c.Get("a", []byte("a")) // a is now most recent
	c.Get("c", []byte("c")) // evicts b

	assert.Equal(t, 2, c.Len())
	assert.Same(t, a, c.Get("a", []byte("a")))

	_, before := c.Stats()
	c.Get("b", []byte("b"))
	_, after := c.Stats()
	assert.Equal(t, before+1, after, "b was evicted")
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(2)
	a := c.Get("a", []byte("a"))
	c.Invalidate("a")
	c.Invalidate("missing")
	assert.Equal(t, 0, c.Len())
	assert.NotSame(t, a, c.Get("a", []byte("a")))
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(8)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i%4))
			for range 100 {
				c.Get(key, []byte(key+"\n"))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}
