package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/semwidgets/errors"
)

type ttlEntry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// TTLCache is a thread-safe cache whose entries expire a fixed duration after they were stored.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]*ttlEntry[V]
	stats   *Statistics
	metrics *cacheMetrics
	evictFn EvictCallback[V]
	clock   Clock

	started  bool
	shutdown chan struct{}
	done     chan struct{}
}

var _ Cache[int] = (*TTLCache[int])(nil)

// NewTTL creates a TTL cache. Background maintenance is not running until Start is called.
func NewTTL[V any](ttl time.Duration, options ...Option[V]) (*TTLCache[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "NewTTL",
			fmt.Sprintf("ttl must be positive, got %v", ttl))
	}
	opts := applyOptions(options...)

	var metrics *cacheMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	return &TTLCache[V]{
		ttl:      ttl,
		items:    make(map[string]*ttlEntry[V]),
		stats:    NewStatistics(),
		metrics:  metrics,
		evictFn:  opts.evictCallback,
		clock:    opts.clock,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// TTL returns the current expiry duration.
func (c *TTLCache[V]) TTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl
}

// SetTTL changes the expiry duration. Non-positive values are ignored.
func (c *TTLCache[V]) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

func (c *TTLCache[V]) expired(e *ttlEntry[V], now time.Time) bool {
	return now.Sub(e.storedAt) > c.ttl
}

// Get retrieves a value by key, purging it if it has expired.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.clock.Now()

	c.mu.RLock()
	entry, exists := c.items[key]
	stale := exists && c.expired(entry, now)
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return zero, false
	}

	if stale {
		var evicted *ttlEntry[V]
		c.mu.Lock()
		if current, ok := c.items[key]; ok && c.expired(current, now) {
			delete(c.items, key)
			evicted = current
		}
		size := len(c.items)
		c.mu.Unlock()

		if evicted != nil {
			c.recordEvictions(1, size)
			if c.evictFn != nil {
				c.evictFn(key, evicted.value)
			}
		}
		c.recordMiss()
		return zero, false
	}

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return entry.value, true
}

func (c *TTLCache[V]) recordMiss() {
	c.stats.Miss()
	if c.metrics != nil {
		c.metrics.recordMiss()
	}
}

func (c *TTLCache[V]) recordEvictions(n, size int) {
	for i := 0; i < n; i++ {
		c.stats.Eviction()
		if c.metrics != nil {
			c.metrics.recordEviction()
		}
	}
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.updateSize(size)
	}
}

// Set stores a value, restarting its expiry window.
func (c *TTLCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = &ttlEntry[V]{key: key, value: value, storedAt: c.clock.Now()}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}
	return !exists, nil
}

// Delete removes an entry by key.
func (c *TTLCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		delete(c.items, key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !exists {
		return false, nil
	}
	c.stats.Delete()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordDelete()
		c.metrics.updateSize(size)
	}
	if c.evictFn != nil {
		c.evictFn(key, entry.value)
	}
	return true, nil
}

// Clear removes all entries from the cache.
func (c *TTLCache[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]*ttlEntry[V])
	c.mu.Unlock()

	if c.evictFn != nil {
		for _, entry := range old {
			c.evictFn(entry.key, entry.value)
		}
	}
	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	return nil
}

// Size returns the number of stored entries, including expired entries not yet purged.
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the keys of all fresh entries.
func (c *TTLCache[V]) Keys() []string {
	keys := make([]string, 0)
	c.Range(func(key string, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Range calls fn for every fresh entry without touching hit/miss statistics.
// fn must not call back into the cache.
func (c *TTLCache[V]) Range(fn func(key string, value V) bool) {
	now := c.clock.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	for key, entry := range c.items {
		if c.expired(entry, now) {
			continue
		}
		if !fn(key, entry.value) {
			return
		}
	}
}

// Stats returns cache statistics.
func (c *TTLCache[V]) Stats() *Statistics {
	return c.stats
}

// RemoveExpired purges all expired entries and returns how many were removed.
func (c *TTLCache[V]) RemoveExpired() int {
	now := c.clock.Now()
	var expiredEntries []*ttlEntry[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if c.expired(entry, now) {
			expiredEntries = append(expiredEntries, entry)
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expiredEntries) == 0 {
		return 0
	}
	c.recordEvictions(len(expiredEntries), size)
	if c.evictFn != nil {
		for _, entry := range expiredEntries {
			c.evictFn(entry.key, entry.value)
		}
	}
	return len(expiredEntries)
}

// Start launches the background purge loop. It returns ErrAlreadyStarted on a second call.
func (c *TTLCache[V]) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Start",
			fmt.Sprintf("cleanup interval must be positive, got %v", interval))
	}
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "cache", "Start", "check running state")
	}
	c.started = true
	c.mu.Unlock()

	go c.cleanup(ctx, interval)
	return nil
}

// Close stops the background purge loop if it is running. Close is idempotent.
func (c *TTLCache[V]) Close() error {
	c.mu.Lock()
	started := c.started
	select {
	case <-c.shutdown:
	default:
		close(c.shutdown)
	}
	c.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

func (c *TTLCache[V]) cleanup(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.RemoveExpired()
		}
	}
}
