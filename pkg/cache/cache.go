package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"
)

// Item represents a cached value with expiration time.
type Item struct {
	V   any
	Exp time.Time // zero = no expiry
}

// Cache is an in-memory LRU cache with per-entry TTL, safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*entry
	order    *list.List // MRU at front, LRU at back
	maxItems int        // 0 = unlimited
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	key  string
	item Item
	elem *list.Element
}

// New creates a cache holding at most maxItems entries (0 = unlimited).
// When janitorInterval > 0 a background sweeper removes expired entries
// until Stop is called.
func New(maxItems int, janitorInterval time.Duration) *Cache {
	if maxItems < 0 {
		maxItems = 0
	}
	c := &Cache{
		items:    make(map[string]*entry),
		order:    list.New(),
		maxItems: maxItems,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	if janitorInterval > 0 {
		go c.janitor(janitorInterval)
	}
	return c
}

// Get returns value and whether it exists and has not expired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.expiredNoLock(e) {
		c.removeNoLock(key)
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	return e.item.V, true
}

// Set stores a value with TTL. ttl<=0 means no expiry.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.item = Item{V: v, Exp: exp}
		c.order.MoveToFront(e.elem)
		return
	}
	e := &entry{key: key, item: Item{V: v, Exp: exp}}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
	for c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.evictLRUNoLock()
	}
}

// GetOrSet returns the cached value for key, computing and storing it with
// fn on a miss. Concurrent misses on the same key may each run fn.
func (c *Cache) GetOrSet(key string, ttl time.Duration, fn func() any) any {
	if c == nil {
		return fn()
	}
	if v, ok := c.Get(key); ok {
		return v
	}
	v := fn()
	c.Set(key, v, ttl)
	return v
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.removeNoLock(key)
	c.mu.Unlock()
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stop terminates the janitor goroutine. Safe to call more than once.
func (c *Cache) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if c.expiredNoLock(e) {
			c.removeNoLock(k)
		}
	}
}

// KeyFromStrings creates a compact stable key from parts.
func KeyFromStrings(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(p))
	}
	return string(h.Sum(nil))
}

func (c *Cache) expiredNoLock(e *entry) bool {
	return !e.item.Exp.IsZero() && c.now().After(e.item.Exp)
}

// removeNoLock removes key from map/list; caller must hold c.mu.
func (c *Cache) removeNoLock(key string) {
	if e, ok := c.items[key]; ok {
		c.order.Remove(e.elem)
		delete(c.items, key)
	}
}

// evictLRUNoLock removes one LRU entry; caller must hold c.mu.
func (c *Cache) evictLRUNoLock() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	if e, ok := back.Value.(*entry); ok {
		delete(c.items, e.key)
	}
}
