// Package store provides the byte-budgeted LRU store backing the cache.
package store

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/thumbcache/resource"
)

// Stats is a point-in-time snapshot of store state.
type Stats struct {
	Count       int
	TotalBytes  int64
	MaxBytes    int64
	Utilization float64
	Hits        int64
	Misses      int64
	Evictions   int64
}

// LRU is a byte-budgeted least-recently-used store.
//
// The budget is soft: an insert never fails. When admitting an entry would
// exceed the budget, stale entries are evicted first; an entry larger than
// the whole budget is still admitted once the store is empty. Removal only
// drops the store's own reference, values handed out earlier stay valid.
type LRU[V any] struct {
	mu        sync.Mutex
	maxBytes  int64
	size      int64
	items     map[string]*list.Element
	evictList *list.List
	rc        *resource.Controller
	onEvict   func(key string, value V, size int64)

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type entry[V any] struct {
	key   string
	value V
	size  int64
}

// New creates an LRU with the given byte budget.
// If rc is provided, it is used to track memory usage.
// onEvict, if non-nil, is called for every budget-driven eviction.
func New[V any](maxBytes int64, rc *resource.Controller, onEvict func(key string, value V, size int64)) *LRU[V] {
	return &LRU[V]{
		maxBytes:  maxBytes,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		rc:        rc,
		onEvict:   onEvict,
	}
}

// Get returns the value for key and marks it most-recently-used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[V]).value, true
	}

	c.misses.Add(1)
	var zero V
	return zero, false
}

// Has reports membership without touching recency or hit counters.
func (c *LRU[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	return ok
}

// Insert admits a value, evicting least-recently-used entries first while
// the budget would be exceeded. The insert itself never fails; a single
// oversized value may transiently exceed the budget.
func (c *LRU[V]) Insert(key string, value V, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		e := ent.Value.(*entry[V])
		c.adjust(size - e.size)
		e.value = value
		e.size = size
		c.evictList.MoveToFront(ent)
		c.evictLocked(0)
		return
	}

	c.evictLocked(size)

	element := c.evictList.PushFront(&entry[V]{key: key, value: value, size: size})
	c.items[key] = element
	c.adjust(size)
}

// Invalidate removes key if present. Returns whether an entry was removed.
func (c *LRU[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(ent, false)
	return true
}

// Clear drops every entry and zeroes the byte total.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back(), false)
	}
}

// Len returns the number of resident entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// TotalBytes returns the current byte total.
func (c *LRU[V]) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns a snapshot of store state.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	count := c.evictList.Len()
	size := c.size
	c.mu.Unlock()

	var utilization float64
	if c.maxBytes > 0 {
		utilization = float64(size) / float64(c.maxBytes)
	}

	return Stats{
		Count:       count,
		TotalBytes:  size,
		MaxBytes:    c.maxBytes,
		Utilization: utilization,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
	}
}

// evictLocked evicts stale entries until incoming extra bytes fit the
// budget or the store is empty.
func (c *LRU[V]) evictLocked(incoming int64) {
	for c.size+incoming > c.maxBytes && c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back(), true)
	}
}

func (c *LRU[V]) removeElement(e *list.Element, evicted bool) {
	c.evictList.Remove(e)
	ent := e.Value.(*entry[V])
	delete(c.items, ent.key)
	c.adjust(-ent.size)
	if evicted {
		c.evictions.Add(1)
		if c.onEvict != nil {
			c.onEvict(ent.key, ent.value, ent.size)
		}
	}
}

func (c *LRU[V]) adjust(delta int64) {
	c.size += delta
	if delta > 0 {
		c.rc.TrackMemory(delta)
	} else {
		c.rc.ReleaseMemory(-delta)
	}
}
