// Package assetcache is the in-process template cache. It keeps template
// binaries hot across export jobs with LRU eviction, per-entry TTLs and an
// aggregate memory bound. One instance is shared by every worker in the
// process; all bookkeeping runs under a single mutex.
package assetcache

import (
	"container/list"
	"sync"
	"time"
)

// Metrics receives cache lifecycle events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Eviction()
	Expire()
}

// NoopMetrics ignores all events.
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}

// Config holds the cache limits. Zero values fall back to the defaults.
type Config struct {
	// Capacity is the maximum entry count.
	Capacity int
	// DefaultTTL applies to entries inserted without an explicit TTL.
	DefaultTTL time.Duration
	// MaxBytes bounds the aggregate blob size. A single blob larger than
	// MaxBytes is still admitted once everything else has been evicted.
	MaxBytes int64
	// Metrics receives hit/miss/eviction events; nil means NoopMetrics.
	Metrics Metrics
}

const (
	defaultCapacity = 32
	defaultTTL      = 30 * time.Minute
	defaultMaxBytes = 256 << 20
)

type entry struct {
	key        string
	blob       []byte
	size       int64
	expiresAt  time.Time
	lastAccess time.Time
}

// Stats is a point-in-time snapshot of the cache.
type Stats struct {
	Hits           uint64
	Misses         uint64
	HitRatio       float64
	Entries        int
	TotalBytes     int64
	OldestEntryAge time.Duration
	Capacity       int
	MaxBytes       int64
	DefaultTTL     time.Duration
}

// Cache is a thread-safe LRU+TTL template cache.
type Cache struct {
	mu sync.Mutex

	capacity   int
	defaultTTL time.Duration
	maxBytes   int64
	metrics    Metrics

	// lru holds *entry values, most recently used at the front.
	lru        *list.List
	index      map[string]*list.Element
	totalBytes int64

	hits   uint64
	misses uint64

	now func() time.Time
}

// New creates a cache with the given limits.
func New(cfg Config) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NoopMetrics{}
	}
	return &Cache{
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		maxBytes:   cfg.MaxBytes,
		metrics:    cfg.Metrics,
		lru:        list.New(),
		index:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the cached blob for key. An expired entry is evicted and
// reported as a miss. A hit refreshes the entry's recency.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		c.metrics.Miss()
		return nil, false
	}

	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeElement(el)
		c.metrics.Expire()
		c.misses++
		c.metrics.Miss()
		return nil, false
	}

	e.lastAccess = c.now()
	c.lru.MoveToFront(el)
	c.hits++
	c.metrics.Hit()

	// Callers get their own copy; the cached bytes must never be mutable
	// through a returned slice.
	blob := make([]byte, len(e.blob))
	copy(blob, e.blob)
	return blob, true
}

// Set inserts or replaces the entry for key. ttl <= 0 means the default TTL.
// Expired entries are purged first, then LRU eviction runs until both the
// entry-count and byte limits hold. An oversized blob is admitted once it is
// the only entry left.
func (c *Cache) Set(key string, blob []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.purgeExpired(now)

	// Replace is remove-then-insert so the limit checks below see the
	// cache without the superseded entry.
	if el, ok := c.index[key]; ok {
		c.removeElement(el)
	}

	incoming := int64(len(blob))

	for c.lru.Len() >= c.capacity {
		if !c.evictOldest() {
			break
		}
	}

	// Byte-bound eviction keeps going past the count limit. Once the cache
	// is empty the incoming blob is admitted even if it alone exceeds the
	// limit: a render must not fail just because a template is large.
	for c.totalBytes+incoming > c.maxBytes && c.lru.Len() > 0 {
		if !c.evictOldest() {
			break
		}
	}

	el := c.lru.PushFront(&entry{
		key:        key,
		blob:       blob,
		size:       incoming,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	})
	c.index[key] = el
	c.totalBytes += incoming
}

// Invalidate removes key and reports whether it was present, expired or not.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Has reports expiry-aware membership without refreshing recency.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return false
	}
	return !c.now().After(el.Value.(*entry).expiresAt)
}

// Stats returns a snapshot of the cache state and counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		Entries:    c.lru.Len(),
		TotalBytes: c.totalBytes,
		Capacity:   c.capacity,
		MaxBytes:   c.maxBytes,
		DefaultTTL: c.defaultTTL,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRatio = float64(c.hits) / float64(total)
	}
	if back := c.lru.Back(); back != nil {
		s.OldestEntryAge = c.now().Sub(back.Value.(*entry).lastAccess)
	}
	return s
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Init()
	c.index = make(map[string]*list.Element)
	c.totalBytes = 0
	c.hits = 0
	c.misses = 0
}

// purgeExpired removes every entry whose TTL has lapsed. Caller holds c.mu.
func (c *Cache) purgeExpired(now time.Time) {
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry).expiresAt) {
			c.removeElement(el)
			c.metrics.Expire()
		}
		el = prev
	}
}

// evictOldest removes the least-recently-used entry. Ties on last-access
// share list order, which is stable within a process run. Caller holds c.mu.
func (c *Cache) evictOldest() bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}
	c.removeElement(back)
	c.metrics.Eviction()
	return true
}

// removeElement drops an element and fixes the byte accounting. Caller holds
// c.mu.
func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.lru.Remove(el)
	delete(c.index, e.key)
	c.totalBytes -= e.size
}
