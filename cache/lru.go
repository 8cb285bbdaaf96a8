// Package cache ships a minimal in-process LRU implementation of
// router.CacheHook, grounded on the teacher's internal/cache.LRUCache
// description (bounded capacity, Get/Set/Delete/Clear, eviction of the
// least-recently-used entry). It exists purely as a reference/test double
// for the Caching option group — spec.md treats external cache providers
// as out-of-scope collaborators, so this is not the "real" production
// cache, just a usable default.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/polyglotai/router"
)

type entry struct {
	key       string
	value     router.Response
	expiresAt time.Time
}

// LRU is a bounded, optionally-TTL'd in-process cache implementing
// router.CacheHook.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	ll       *list.List
	items    map[string]*list.Element
}

// New builds an LRU with the given capacity. A ttl of 0 disables
// expiration.
func New(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get implements router.CacheHook.
func (c *LRU) Get(_ context.Context, key string) (router.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return router.Response{}, false
	}
	e := el.Value.(*entry)
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.removeElementLocked(el)
		return router.Response{}, false
	}
	c.ll.MoveToFront(el)
	return e.value, true
}

// Set implements router.CacheHook.
func (c *LRU) Set(_ context.Context, key string, resp router.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.ttl > 0 {
		expires = time.Now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = resp
		el.Value.(*entry).expiresAt = expires
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: key, value: resp, expiresAt: expires})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.removeElementLocked(oldest)
		}
	}
}

// Delete removes key from the cache, if present.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElementLocked(el)
	}
}

// Clear empties the cache.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *LRU) removeElementLocked(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

var _ router.CacheHook = (*LRU)(nil)
