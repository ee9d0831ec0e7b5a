package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
}

type entry[T any] struct {
	key       string
	value     T
	expiresAt time.Time
}

// LRUCache is a size bounded cache whose entries also expire after ttl.
// Safe for concurrent use.
type LRUCache[T any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	index    map[string]*list.Element
	order    *list.List // front is most recently used
	now      func() time.Time
	stats    Stats
}

func NewLRUCache[T any](capacity int, ttl time.Duration) *LRUCache[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRUCache[T]{
		capacity: capacity,
		ttl:      ttl,
		index:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the live value for key and marks it recently used.
func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *LRUCache[T]) lookup(key string) (T, bool) {
	var zero T
	el, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	e := el.Value.(*entry[T])
	if c.now().After(e.expiresAt) {
		c.unlink(el)
		c.stats.Misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRUCache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(key, value)
}

func (c *LRUCache[T]) store(key string, value T) {
	e := &entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}
	c.index[key] = c.order.PushFront(e)
	for c.order.Len() > c.capacity {
		c.unlink(c.order.Back())
		c.stats.Evictions++
	}
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result. Errors are returned and not cached. The lock is not held while
// load runs, so concurrent misses may load twice.
func (c *LRUCache[T]) GetOrLoad(key string, load func() (T, error)) (T, bool, error) {
	c.mu.Lock()
	if v, ok := c.lookup(key); ok {
		c.mu.Unlock()
		return v, true, nil
	}
	c.mu.Unlock()

	v, err := load()
	if err != nil {
		var zero T
		return zero, false, err
	}
	c.Set(key, v)
	return v, false, nil
}

func (c *LRUCache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.unlink(el)
	}
}

func (c *LRUCache[T]) unlink(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}

// CleanExpired drops expired entries and returns how many went.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[T]).expiresAt) {
			c.unlink(el)
			n++
		}
		el = prev
	}
	return n
}

// Purge drops every entry. Stats are kept.
func (c *LRUCache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.order.Init()
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *LRUCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.index)
	return s
}
