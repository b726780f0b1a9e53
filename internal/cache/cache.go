// Package cache provides the standardized in-memory cache used for site and
// monitor lookups. Entries expire lazily on access and the cache evicts the
// least recently used entry once MaxSize is reached.
package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// Invalidation types carried by invalidation events.
const (
	TypeSite    = "site"
	TypeMonitor = "monitor"
	TypeAll     = "all"
)

// Invalidation reasons.
const (
	ReasonManual  = "manual"
	ReasonExpired = "expired"
	ReasonUpdate  = "update"
	ReasonDelete  = "delete"
)

var ErrNameRequired = errors.New("cache: name is required")

// Invalidation describes an entry (or the whole cache) being dropped.
type Invalidation struct {
	Cache      string `json:"cache"`
	Type       string `json:"type"`
	Identifier string `json:"identifier,omitempty"`
	Reason     string `json:"reason"`
}

// Emitter receives invalidation notifications.
type Emitter interface {
	CacheInvalidated(Invalidation)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Invalidation)

func (f EmitterFunc) CacheInvalidated(inv Invalidation) { f(inv) }

type Options struct {
	Name string
	// DefaultTTL <= 0 disables expiration.
	DefaultTTL time.Duration
	// MaxSize <= 0 means unbounded.
	MaxSize     int
	EnableStats bool
	// EntityType is reported as the invalidation type for single-key invalidations.
	EntityType string
	Emitter    Emitter
	Now        func() time.Time
}

type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Size      int   `json:"size"`
	Evictions int64 `json:"evictions"`
}

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.insertedAt) >= e.ttl
}

// Cache is safe for concurrent use.
type Cache[K comparable, V any] struct {
	opts Options

	mu      sync.Mutex
	entries map[K]*entry[V]
	// order tracks recency only; evicting from it drops the entry.
	order *lru.Cache
	stats Stats
}

// New validates options and builds an empty cache.
func New[K comparable, V any](opts Options) (*Cache[K, V], error) {
	if opts.Name == "" {
		return nil, ErrNameRequired
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EntityType == "" {
		opts.EntityType = TypeSite
	}
	c := &Cache[K, V]{
		opts:    opts,
		entries: make(map[K]*entry[V]),
		order:   lru.New(0),
	}
	c.order.OnEvicted = func(k lru.Key, _ interface{}) {
		delete(c.entries, k.(K))
	}
	return c, nil
}

func (c *Cache[K, V]) Name() string { return c.opts.Name }

// Get returns the value for key. Expired entries are removed and reported as misses.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.miss()
		c.mu.Unlock()
		return zero, false
	}
	if e.expired(c.opts.Now()) {
		c.order.Remove(key)
		c.miss()
		c.mu.Unlock()
		c.emit(c.opts.EntityType, key, ReasonExpired)
		return zero, false
	}
	c.order.Get(key)
	if c.opts.EnableStats {
		c.stats.Hits++
	}
	c.mu.Unlock()
	return e.value, true
}

// Has reports whether a live entry exists without touching recency or statistics.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && !e.expired(c.opts.Now())
}

// Set stores value with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.opts.DefaultTTL)
}

// SetWithTTL stores value with an explicit TTL; ttl <= 0 never expires.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.opts.MaxSize > 0 {
		for len(c.entries) >= c.opts.MaxSize {
			c.order.RemoveOldest()
			if c.opts.EnableStats {
				c.stats.Evictions++
			}
		}
	}
	c.entries[key] = &entry[V]{value: value, insertedAt: c.opts.Now(), ttl: ttl}
	c.order.Add(key, nil)
}

// Delete removes key without notifying.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.order.Remove(key)
	return true
}

// Invalidate removes key and notifies the emitter.
func (c *Cache[K, V]) Invalidate(key K) {
	c.InvalidateWithReason(key, ReasonManual)
}

func (c *Cache[K, V]) InvalidateWithReason(key K, reason string) {
	c.mu.Lock()
	c.order.Remove(key)
	c.mu.Unlock()
	c.emit(c.opts.EntityType, key, reason)
}

// InvalidateAll drops every entry and emits a single "all" notification.
func (c *Cache[K, V]) InvalidateAll() {
	c.Clear()
	c.emitAll(ReasonManual)
}

// Clear drops every entry without notifying.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	c.order.Clear()
	c.entries = make(map[K]*entry[V])
	c.mu.Unlock()
}

// Keys lists stored keys in no particular order, expired ones included until touched.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns counters; a zeroed value when stats are disabled.
func (c *Cache[K, V]) Stats() Stats {
	if !c.opts.EnableStats {
		return Stats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.entries)
	return s
}

func (c *Cache[K, V]) miss() {
	if c.opts.EnableStats {
		c.stats.Misses++
	}
}

func (c *Cache[K, V]) emit(typ string, key K, reason string) {
	if c.opts.Emitter == nil {
		return
	}
	id, _ := any(key).(string)
	c.opts.Emitter.CacheInvalidated(Invalidation{Cache: c.opts.Name, Type: typ, Identifier: id, Reason: reason})
}

func (c *Cache[K, V]) emitAll(reason string) {
	if c.opts.Emitter == nil {
		return
	}
	c.opts.Emitter.CacheInvalidated(Invalidation{Cache: c.opts.Name, Type: TypeAll, Reason: reason})
}
