package lineindex

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Cache keeps the most recently used indexes, keyed by file name. An entry
// is rebuilt when the content hash changes; Invalidate drops it outright.
type Cache struct {
	mu    sync.Mutex
	limit int
	order *list.List
	items map[string]*list.Element

	hits, misses int
}

type entry struct {
	key  string
	hash uint64
	idx  *Index
}

// NewCache creates a cache holding at most limit indexes (minimum 1).
func NewCache(limit int) *Cache {
	return &Cache{
		limit: max(1, limit),
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

// Get returns the index for key, building it from src when missing or stale.
func (c *Cache) Get(key string, src []byte) *Index {
	h := xxhash.Sum64(src)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		if e.hash == h {
			c.hits++
			c.order.MoveToFront(el)
			return e.idx
		}
		c.order.Remove(el)
		delete(c.items, key)
	}

	c.misses++
	e := &entry{key: key, hash: h, idx: New(src)}
	c.items[key] = c.order.PushFront(e)
	for c.order.Len() > c.limit {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*entry).key)
	}
	return e.idx
}

// Invalidate forgets key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of cached indexes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
