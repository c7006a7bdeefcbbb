package ttlcache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Config controls cache capacity and maintenance behavior.
//
//   - MaxSize <= 0 means unbounded.
//   - DefaultTTL <= 0 means entries set without an explicit TTL never expire.
//   - CleanupInterval <= 0 disables the background sweep; lazy expiration
//     still applies.
type Config struct {
	DefaultTTL      time.Duration
	MaxSize         int
	CleanupInterval time.Duration

	// Now overrides the clock. Tests use it to step time deterministically.
	Now func() time.Time
}

var ErrClosed = errors.New("cache is closed")

// Cache is a concurrency-safe TTL cache. The zero value is not usable; call New.
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	defaultTTL time.Duration
	maxSize    int
	now        func() time.Time

	items map[K]*list.Element
	order *list.List // Front = oldest createdAt

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	cleanupEvery time.Duration
	closed       bool
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	createdAt time.Time
	expiresAt time.Time
	hasExpiry bool
}

func (e *entry[K, V]) expiredAt(now time.Time) bool {
	return e.hasExpiry && !now.Before(e.expiresAt)
}

// Stats is a point-in-time view of the cache counters.
type Stats struct {
	Size      int    `json:"size"`
	MaxSize   int    `json:"max_size"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
}

// New constructs a cache and starts background maintenance if enabled.
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	ctx, cancel := context.WithCancel(context.Background())

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Cache[K, V]{
		defaultTTL:   cfg.DefaultTTL,
		maxSize:      cfg.MaxSize,
		now:          now,
		items:        make(map[K]*list.Element),
		order:        list.New(),
		ctx:          ctx,
		cancel:       cancel,
		cleanupEvery: cfg.CleanupInterval,
	}

	if c.cleanupEvery > 0 {
		c.wg.Add(1)
		go c.expiryLoop()
	}
	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.liveLocked(key)
	if !ok {
		c.misses.Inc()
		return zero, false
	}
	c.hits.Inc()
	return el.Value.(*entry[K, V]).value, true
}

// Has reports whether key is present and not expired.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.liveLocked(key)
	return ok
}

// Set stores value under key with the default TTL.
func (c *Cache[K, V]) Set(key K, value V) error {
	return c.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A ttl <= 0 falls back to the default TTL.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	now := c.now()
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	e := &entry[K, V]{
		key:       key,
		value:     value,
		createdAt: now,
		hasExpiry: ttl > 0,
	}
	if e.hasExpiry {
		e.expiresAt = now.Add(ttl)
	}

	// Replacing a key keeps the size constant; it only moves to the back as
	// the newest creation.
	if el, ok := c.items[key]; ok {
		el.Value = e
		c.order.MoveToBack(el)
		return nil
	}

	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.deleteExpiredLocked(now)
	}
	if c.maxSize > 0 && len(c.items) >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions.Inc()
		}
	}

	c.items[key] = c.order.PushBack(e)
	return nil
}

// Delete removes key and reports whether it was resident.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.order.Init()
}

// Len returns the number of resident entries, expired ones included until
// they are reclaimed.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ExpiresAt returns when key stops being visible. ok is false when the key is
// absent, expired, or never expires.
func (c *Cache[K, V]) ExpiresAt(key K) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.liveLocked(key)
	if !ok {
		return time.Time{}, false
	}
	e := el.Value.(*entry[K, V])
	return e.expiresAt, e.hasExpiry
}

func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Size:      c.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
	}
}

// Close stops background maintenance and rejects further writes. Close is
// safe to call more than once.
func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Cache[K, V]) liveLocked(key K) (*list.Element, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if el.Value.(*entry[K, V]).expiredAt(c.now()) {
		c.removeLocked(el)
		c.expired.Inc()
		return nil, false
	}
	return el, true
}

func (c *Cache[K, V]) removeLocked(el *list.Element) {
	e := c.order.Remove(el).(*entry[K, V])
	delete(c.items, e.key)
}

// deleteExpiredLocked is a full O(n) scan.
func (c *Cache[K, V]) deleteExpiredLocked(now time.Time) int {
	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if el.Value.(*entry[K, V]).expiredAt(now) {
			c.removeLocked(el)
			removed++
		}
		el = next
	}
	c.expired.Add(uint64(removed))
	return removed
}
