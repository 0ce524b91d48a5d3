// Package cache provides the bounded TTL+LRU store for node invocation
// results, keyed by invocation fingerprint.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxSize bounds the cache when no size is configured.
const DefaultMaxSize = 1000

// Entry is one cached invocation result.
type Entry struct {
	Key         string
	Value       map[string]any
	CreatedAt   time.Time
	TTL         time.Duration
	AccessCount int
}

func (e *Entry) expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache is a mutex-guarded TTL+LRU map. The list front is the most recently
// used entry. All node tasks in a level touch the cache concurrently, so
// every operation takes the lock.
type Cache struct {
	mu        sync.Mutex
	maxSize   int
	ll        *list.List
	items     map[string]*list.Element
	hits      uint64
	misses    uint64
	evictions uint64
	now       func() time.Time
}

// New creates a cache bounded at maxSize entries. A non-positive size falls
// back to DefaultMaxSize.
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the value for key. An absent key, or a present entry past its
// TTL (which is evicted on the spot), counts as a miss. A hit marks the entry
// most recently used and bumps its access count.
func (c *Cache) Get(key string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.expired(c.now()) {
		c.removeElement(el)
		c.evictions++
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	entry.AccessCount++
	c.hits++
	return entry.Value, true
}

// Set inserts or overwrites key as the most recently used entry. Inserting a
// new key at capacity evicts the least recently used entry first.
func (c *Cache) Set(key string, value map[string]any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		entry := el.Value.(*Entry)
		entry.Value = value
		entry.CreatedAt = c.now()
		entry.TTL = ttl
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.maxSize {
		if oldest := c.ll.Back(); oldest != nil {
			c.removeElement(oldest)
			c.evictions++
		}
	}

	entry := &Entry{Key: key, Value: value, CreatedAt: c.now(), TTL: ttl}
	c.items[key] = c.ll.PushFront(entry)
}

// CleanupExpired sweeps every expired entry and returns how many were
// removed. It is invoked by an external maintenance trigger; the cache never
// schedules its own sweeps.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*Entry).expired(now) {
			c.removeElement(el)
			c.evictions++
			removed++
		}
		el = next
	}
	return removed
}

// Stats reports current counters. The hit rate is 0 before any request.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.ll.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}
	return s
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*Entry).Key)
}
