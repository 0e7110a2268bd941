// Package warehouse stores execution results per component and source with
// TTL expiry, request accounting and memory estimation.
package warehouse

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/metric"
	"github.com/c360/semwidgets/pkg/cache"
)

const (
	// DefaultExpiry is how long stored data stays fresh.
	DefaultExpiry = 5 * time.Minute
	// DefaultCleanupInterval is the maintenance pass period.
	DefaultCleanupInterval = time.Minute

	// completeSourceID is reserved for the merged map of all sources.
	completeSourceID = "complete"
	keySeparator     = "\x1f"
)

// Entry is one stored result.
type Entry struct {
	Data     any    `json:"data"`
	Type     string `json:"type"`
	StoredAt int64  `json:"storedAt"`
	// Size is the estimated serialized size in bytes, 0 when unknown.
	Size int64 `json:"size"`
}

// PerformanceMetrics reports read accounting.
type PerformanceMetrics struct {
	CacheHitRate        float64 `json:"cacheHitRate"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	TotalRequests       int64   `json:"totalRequests"`
	CacheHits           int64   `json:"cacheHits"`
	CacheMisses         int64   `json:"cacheMisses"`
}

// StorageStats reports what is currently held.
type StorageStats struct {
	TotalComponents  int     `json:"totalComponents"`
	TotalDataSources int     `json:"totalDataSources"`
	MemoryUsageMB    float64 `json:"memoryUsageMB"`
}

// Warehouse is safe for concurrent use. Concurrent stores to the same
// component and source are last-writer-wins.
type Warehouse struct {
	entries         *cache.TTLCache[Entry]
	clock           cache.Clock
	cleanupInterval time.Duration
	logger          *slog.Logger

	mu            sync.Mutex
	totalRequests int64
	hits          int64
	misses        int64
	totalLatency  time.Duration
	destroyed     bool
}

type options struct {
	expiry          time.Duration
	cleanupInterval time.Duration
	clock           cache.Clock
	registry        *metric.MetricsRegistry
	logger          *slog.Logger
}

// Option configures a Warehouse.
type Option func(*options)

// WithExpiry sets the initial expiry.
func WithExpiry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithCleanupInterval sets the maintenance period used by Start.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cleanupInterval = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(clock cache.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMetrics exports cache metrics under the warehouse prefix.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a warehouse.
func New(opts ...Option) (*Warehouse, error) {
	o := options{
		expiry:          DefaultExpiry,
		cleanupInterval: DefaultCleanupInterval,
		clock:           cache.SystemClock{},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := cache.NewTTL[Entry](o.expiry,
		cache.WithClock[Entry](o.clock),
		cache.WithMetrics[Entry](o.registry, "warehouse"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "warehouse", "New", "create entry cache")
	}

	return &Warehouse{
		entries:         entries,
		clock:           o.clock,
		cleanupInterval: o.cleanupInterval,
		logger:          o.logger,
	}, nil
}

// Start runs the periodic purge of expired entries until ctx is done or Destroy is called.
func (w *Warehouse) Start(ctx context.Context) error {
	if err := w.entries.Start(ctx, w.cleanupInterval); err != nil {
		return errors.Wrap(err, "warehouse", "Start", "start maintenance")
	}
	return nil
}

func key(componentID, sourceID string) string {
	return componentID + keySeparator + sourceID
}

func splitKey(k string) (componentID, sourceID string) {
	componentID, sourceID, _ = strings.Cut(k, keySeparator)
	return componentID, sourceID
}

// StoreComponentData stores data for one source, replacing what was there.
// Empty ids are ignored.
func (w *Warehouse) StoreComponentData(componentID, sourceID string, data any, typ string) {
	if componentID == "" || sourceID == "" {
		w.logger.Debug("ignoring store with empty id", "component_id", componentID, "source_id", sourceID)
		return
	}
	entry := Entry{
		Data:     data,
		Type:     typ,
		StoredAt: w.clock.Now().UnixMilli(),
		Size:     w.estimateSize(componentID, sourceID, data),
	}
	if _, err := w.entries.Set(key(componentID, sourceID), entry); err != nil {
		w.logger.Warn("failed to store component data",
			"component_id", componentID, "source_id", sourceID, "error", err)
	}
}

// StoreCompleteData stores the merged map of all sources of a component.
func (w *Warehouse) StoreCompleteData(componentID string, data map[string]any) {
	w.StoreComponentData(componentID, completeSourceID, data, completeSourceID)
}

func (w *Warehouse) estimateSize(componentID, sourceID string, data any) (size int64) {
	defer func() {
		if r := recover(); r != nil {
			size = 0
		}
	}()
	b, err := json.Marshal(data)
	if err != nil {
		w.logger.Debug("size estimation skipped",
			"component_id", componentID, "source_id", sourceID, "error", err)
		return 0
	}
	return int64(len(b))
}

// GetComponentData returns the fresh data of every source of componentID.
// The second result is false when nothing fresh is stored.
func (w *Warehouse) GetComponentData(componentID string) (map[string]any, bool) {
	start := time.Now()
	var out map[string]any
	if componentID != "" {
		prefix := componentID + keySeparator
		w.entries.Range(func(k string, e Entry) bool {
			if !strings.HasPrefix(k, prefix) {
				return true
			}
			if _, sourceID := splitKey(k); sourceID != completeSourceID {
				if out == nil {
					out = make(map[string]any)
				}
				out[sourceID] = e.Data
			}
			return true
		})
	}
	w.record(out != nil, time.Since(start))
	return out, out != nil
}

// GetSourceData returns the fresh data of one source.
func (w *Warehouse) GetSourceData(componentID, sourceID string) (any, bool) {
	start := time.Now()
	if componentID == "" || sourceID == "" {
		w.record(false, time.Since(start))
		return nil, false
	}
	e, ok := w.entries.Get(key(componentID, sourceID))
	w.record(ok, time.Since(start))
	return e.Data, ok
}

// GetCompleteData returns the merged map stored by StoreCompleteData.
func (w *Warehouse) GetCompleteData(componentID string) (map[string]any, bool) {
	v, ok := w.GetSourceData(componentID, completeSourceID)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func (w *Warehouse) record(hit bool, latency time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.totalRequests++
	if hit {
		w.hits++
	} else {
		w.misses++
	}
	w.totalLatency += latency
}

// ClearComponentCache drops every entry of componentID.
func (w *Warehouse) ClearComponentCache(componentID string) {
	if componentID == "" {
		return
	}
	prefix := componentID + keySeparator
	var keys []string
	for _, k := range w.entries.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	// Keys skips expired entries, purge those too.
	w.entries.RemoveExpired()
	for _, k := range keys {
		if _, err := w.entries.Delete(k); err != nil {
			w.logger.Warn("failed to clear entry", "key", k, "error", err)
		}
	}
}

// ClearAllCache drops every entry. Request accounting is kept.
func (w *Warehouse) ClearAllCache() {
	_ = w.entries.Clear()
}

// SetCacheExpiry changes the expiry. It applies to entries already stored.
func (w *Warehouse) SetCacheExpiry(d time.Duration) {
	w.entries.SetTTL(d)
}

// CacheExpiry returns the current expiry.
func (w *Warehouse) CacheExpiry() time.Duration {
	return w.entries.TTL()
}

// GetPerformanceMetrics returns read accounting.
func (w *Warehouse) GetPerformanceMetrics() PerformanceMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := PerformanceMetrics{
		TotalRequests: w.totalRequests,
		CacheHits:     w.hits,
		CacheMisses:   w.misses,
	}
	if w.totalRequests > 0 {
		m.CacheHitRate = float64(w.hits) / float64(w.totalRequests)
		m.AverageResponseTime = float64(w.totalLatency.Microseconds()) / 1000 / float64(w.totalRequests)
	}
	return m
}

// GetStorageStats returns counts and the estimated memory held by fresh entries.
func (w *Warehouse) GetStorageStats() StorageStats {
	components := make(map[string]struct{})
	var sources int
	var bytes int64
	w.entries.Range(func(k string, e Entry) bool {
		componentID, sourceID := splitKey(k)
		components[componentID] = struct{}{}
		if sourceID != completeSourceID {
			sources++
		}
		bytes += e.Size
		return true
	})
	return StorageStats{
		TotalComponents:  len(components),
		TotalDataSources: sources,
		MemoryUsageMB:    float64(bytes) / (1024 * 1024),
	}
}

// ResetMetrics zeroes read accounting.
func (w *Warehouse) ResetMetrics() {
	w.mu.Lock()
	w.totalRequests, w.hits, w.misses, w.totalLatency = 0, 0, 0, 0
	w.mu.Unlock()
}

// Destroy stops maintenance and clears all state. It is idempotent.
func (w *Warehouse) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	w.mu.Unlock()

	w.ClearAllCache()
	if err := w.entries.Close(); err != nil {
		w.logger.Warn("warehouse maintenance did not stop", "error", err)
	}
	w.ResetMetrics()
}
