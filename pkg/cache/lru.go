package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time // zero means no expiry
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// LRU is a thread-safe cache that evicts the least recently used entry once
// it holds capacity entries.
type LRU[K comparable, V any] struct {
	capacity int
	items    map[K]*list.Element
	order    *list.List
	mu       sync.Mutex
	now      func() time.Time
	onEvict  func(key K, value V)
}

type Option[K comparable, V any] func(*LRU[K, V])

// WithClock replaces time.Now, for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *LRU[K, V]) { c.now = now }
}

// WithEvictCallback is called for entries dropped by capacity or expiry.
func WithEvictCallback[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) { c.onEvict = fn }
}

// New panics when capacity is not positive.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	c := &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a live entry and marks it as recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(c.items[key])
	return e.value, true
}

// Put stores value under key. A ttl of zero or less keeps the entry until it
// is evicted.
func (c *LRU[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = c.now().Add(ttl)
	}

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value, e.expires = value, expires
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expires: expires})
	if c.order.Len() > c.capacity {
		c.evict(c.order.Back())
	}
}

// Take removes the entry and returns it if it was still live. Of several
// concurrent callers at most one gets ok == true.
func (c *LRU[K, V]) Take(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.live(key)
	if !ok {
		var zero V
		return zero, false
	}
	c.order.Remove(c.items[key])
	delete(c.items, key)
	return e.value, true
}

// Len counts stored entries, including expired ones not yet dropped.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// live must be called with the lock held. Expired entries are evicted.
func (c *LRU[K, V]) live(key K) (*entry[K, V], bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry[K, V])
	if e.expired(c.now()) {
		c.evict(elem)
		return nil, false
	}
	return e, true
}

// evict must be called with the lock held.
func (c *LRU[K, V]) evict(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	e := elem.Value.(*entry[K, V])
	delete(c.items, e.key)
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
