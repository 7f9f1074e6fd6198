package cache

import (
	"sync"
)

// Cache is a concurrency-safe string-keyed map. The job registry uses it
// for job records and for idempotency-key lookups.
type Cache[T interface{}] struct {
	cache map[string]T
	mutex sync.RWMutex
}

func New[T interface{}]() *Cache[T] {
	return &Cache[T]{
		cache: make(map[string]T),
	}
}

func (c *Cache[T]) Remove(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.cache, key)
}

func (c *Cache[T]) Get(key string) T {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	info, ok := c.cache[key]
	if ok {
		return info
	}
	var zero T
	return zero
}

func (c *Cache[T]) Store(key string, value T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cache[key] = value
}

// StoreIfAbsent inserts value only when key has no entry yet and reports
// whether the insert happened. Losers of the race get false.
func (c *Cache[T]) StoreIfAbsent(key string, value T) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.cache[key]; ok {
		return false
	}
	c.cache[key] = value
	return true
}

func (c *Cache[T]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cache)
}
