// Package cache is a small LRU with optional expiry.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type Cache[K comparable, V any] struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	ll   *list.List
	data map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key   K
	value V
	exp   time.Time
}

// New returns a cache holding up to capacity entries. A zero ttl never
// expires.
func New[K comparable, V any](capacity int, ttl time.Duration) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache[K, V]{
		cap:  capacity,
		ttl:  ttl,
		ll:   list.New(),
		data: make(map[K]*list.Element),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.data[key]; ok {
		e := ele.Value.(*entry[K, V])
		if c.ttl > 0 && time.Now().After(e.exp) {
			c.ll.Remove(ele)
			delete(c.data, key)
			var zero V
			return zero, false
		}
		c.ll.MoveToFront(ele)
		return e.value, true
	}
	var zero V
	return zero, false
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, ok := c.data[key]; ok {
		c.ll.MoveToFront(ele)
		e := ele.Value.(*entry[K, V])
		e.value = value
		e.exp = expiry(c.ttl)
		return
	}
	el := c.ll.PushFront(&entry[K, V]{key: key, value: value, exp: expiry(c.ttl)})
	c.data[key] = el
	if c.ll.Len() > c.cap {
		if last := c.ll.Back(); last != nil {
			c.ll.Remove(last)
			delete(c.data, last.Value.(*entry[K, V]).key)
		}
	}
}

// Purge drops every entry.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.data = make(map[K]*list.Element)
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
