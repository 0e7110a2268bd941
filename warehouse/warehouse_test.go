package warehouse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/metric"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newWarehouse(t *testing.T, opts ...Option) (*Warehouse, *manualClock) {
	t.Helper()
	clock := newManualClock()
	w, err := New(append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(w.Destroy)
	return w, clock
}

func TestWarehouse_TTL(t *testing.T) {
	w, clock := newWarehouse(t)
	w.SetCacheExpiry(time.Second)

	w.StoreComponentData("A", "s1", 42, "static")

	clock.Advance(900 * time.Millisecond)
	data, ok := w.GetComponentData("A")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"s1": 42}, data)

	clock.Advance(200 * time.Millisecond)
	data, ok = w.GetComponentData("A")
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestWarehouse_SetCacheExpiryAppliesToStoredEntries(t *testing.T) {
	w, clock := newWarehouse(t, WithExpiry(time.Hour))
	w.StoreComponentData("A", "s1", "v", "static")

	clock.Advance(2 * time.Second)
	w.SetCacheExpiry(time.Second)

	_, ok := w.GetSourceData("A", "s1")
	assert.False(t, ok)
	assert.Equal(t, time.Second, w.CacheExpiry())
}

func TestWarehouse_Isolation(t *testing.T) {
	w, _ := newWarehouse(t)

	w.StoreComponentData("A", "s1", "d1", "json")
	w.StoreComponentData("B", "s1", "d2", "json")
	w.StoreComponentData("AB", "s1", "d3", "json")

	a, ok := w.GetComponentData("A")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"s1": "d1"}, a)

	b, _ := w.GetComponentData("B")
	assert.Equal(t, map[string]any{"s1": "d2"}, b)

	w.ClearComponentCache("A")
	_, ok = w.GetComponentData("A")
	assert.False(t, ok)
	_, ok = w.GetComponentData("AB")
	assert.True(t, ok)
}

func TestWarehouse_UnknownComponent(t *testing.T) {
	w, _ := newWarehouse(t)

	data, ok := w.GetComponentData("missing")
	assert.False(t, ok)
	assert.Nil(t, data)

	_, ok = w.GetComponentData("")
	assert.False(t, ok)
}

func TestWarehouse_HitRate(t *testing.T) {
	w, _ := newWarehouse(t)
	assert.Zero(t, w.GetPerformanceMetrics().CacheHitRate)

	w.StoreComponentData("A", "s1", 1, "static")
	w.GetComponentData("A")
	w.GetComponentData("A")
	w.GetComponentData("B")

	m := w.GetPerformanceMetrics()
	assert.EqualValues(t, 3, m.TotalRequests)
	assert.EqualValues(t, 2, m.CacheHits)
	assert.EqualValues(t, 1, m.CacheMisses)
	assert.InDelta(t, 2.0/3.0, m.CacheHitRate, 1e-9)
	assert.GreaterOrEqual(t, m.AverageResponseTime, 0.0)
}

func TestWarehouse_EmptyIDsAreIgnored(t *testing.T) {
	w, _ := newWarehouse(t)

	assert.NotPanics(t, func() {
		w.StoreComponentData("", "s1", 1, "static")
		w.StoreComponentData("A", "", 1, "static")
	})
	assert.Zero(t, w.GetStorageStats().TotalDataSources)
}

func TestWarehouse_CircularDataDoesNotPanic(t *testing.T) {
	w, _ := newWarehouse(t)
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	require.NotPanics(t, func() { w.StoreComponentData("A", "s1", cyclic, "static") })

	_, ok := w.GetSourceData("A", "s1")
	assert.True(t, ok)
	assert.Zero(t, w.GetStorageStats().MemoryUsageMB)
}

func TestWarehouse_CompleteDataIsSeparate(t *testing.T) {
	w, _ := newWarehouse(t)

	w.StoreComponentData("A", "s1", 1, "static")
	w.StoreCompleteData("A", map[string]any{"s1": 1})

	data, _ := w.GetComponentData("A")
	assert.Equal(t, map[string]any{"s1": 1}, data)

	complete, ok := w.GetCompleteData("A")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"s1": 1}, complete)

	stats := w.GetStorageStats()
	assert.Equal(t, 1, stats.TotalComponents)
	assert.Equal(t, 1, stats.TotalDataSources)
}

func TestWarehouse_StorageStats(t *testing.T) {
	w, _ := newWarehouse(t)

	w.StoreComponentData("A", "s1", "x", "static")
	w.StoreComponentData("A", "s2", "y", "static")
	w.StoreComponentData("B", "s1", map[string]any{"k": "v"}, "json")

	stats := w.GetStorageStats()
	assert.Equal(t, 2, stats.TotalComponents)
	assert.Equal(t, 3, stats.TotalDataSources)
	assert.Greater(t, stats.MemoryUsageMB, 0.0)

	w.ClearAllCache()
	assert.Equal(t, StorageStats{}, w.GetStorageStats())
}

func TestWarehouse_LastWriteWins(t *testing.T) {
	w, _ := newWarehouse(t)

	w.StoreComponentData("A", "s1", "old", "static")
	w.StoreComponentData("A", "s1", "new", "static")

	v, ok := w.GetSourceData("A", "s1")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestWarehouse_DestroyIsIdempotent(t *testing.T) {
	w, err := New(WithMetrics(metric.NewMetricsRegistry()))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.StoreComponentData("A", "s1", 1, "static")
	w.GetComponentData("A")

	w.Destroy()
	w.Destroy()

	_, ok := w.GetComponentData("A")
	assert.False(t, ok)
	assert.EqualValues(t, 1, w.GetPerformanceMetrics().TotalRequests)
}
