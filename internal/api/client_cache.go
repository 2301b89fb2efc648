package api

import (
	"container/list"
	"sync"
)

// lruCache is a small thread-safe LRU used for org unit display names so
// repeated lookups during assessment building do not hammer the instance.
type lruCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List               // front is most recently used
	index    map[string]*list.Element // key -> element in order
}

type lruEntry struct {
	key, value string
}

func newLRUCache(capacity int) *lruCache {
	c := &lruCache{capacity: capacity}
	c.reset()
	return c
}

func (c *lruCache) reset() {
	c.order = list.New()
	c.index = make(map[string]*list.Element, c.capacity)
}

func (c *lruCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).value, true
}

// Put inserts or refreshes key. At capacity the entry that has gone longest
// without a Get or Put is dropped.
func (c *lruCache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		elem.Value.(*lruEntry).value = value
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		stale := c.order.Remove(c.order.Back()).(*lruEntry)
		delete(c.index, stale.key)
	}
	c.index[key] = c.order.PushFront(&lruEntry{key: key, value: value})
}

func (c *lruCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *lruCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}
