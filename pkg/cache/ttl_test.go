package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/errors"
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

func TestNewTTL_RejectsNonPositive(t *testing.T) {
	_, err := NewTTL[string](0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestTTLCache_BasicOperations(t *testing.T) {
	c, err := NewTTL[string](time.Minute)
	require.NoError(t, err)

	_, ok := c.Get("key1")
	assert.False(t, ok)

	isNew, err := c.Set("key1", "value1")
	require.NoError(t, err)
	assert.True(t, isNew)

	value, ok := c.Get("key1")
	require.True(t, ok)
	assert.Equal(t, "value1", value)

	isNew, err = c.Set("key1", "value2")
	require.NoError(t, err)
	assert.False(t, isNew)

	deleted, err := c.Delete("key1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete("key1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Set("", "x")
	assert.True(t, errors.IsInvalid(err))
}

func TestTTLCache_Expiry(t *testing.T) {
	clock := newManualClock()
	var evicted []string
	c, err := NewTTL[int](time.Second,
		WithClock[int](clock),
		WithEvictionCallback[int](func(key string, _ int) { evicted = append(evicted, key) }),
	)
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	clock.Advance(999 * time.Millisecond)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(2 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, int64(1), c.Stats().Evictions())
}

func TestTTLCache_SetTTLAppliesToStoredEntries(t *testing.T) {
	clock := newManualClock()
	c, err := NewTTL[int](time.Minute, WithClock[int](clock))
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	clock.Advance(10 * time.Second)

	c.SetTTL(5 * time.Second)
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.SetTTL(-1)
	assert.Equal(t, 5*time.Second, c.TTL())
}

func TestTTLCache_RangeSkipsExpired(t *testing.T) {
	clock := newManualClock()
	c, err := NewTTL[int](time.Second, WithClock[int](clock))
	require.NoError(t, err)

	_, _ = c.Set("old", 1)
	clock.Advance(2 * time.Second)
	_, _ = c.Set("new", 2)

	assert.Equal(t, []string{"new"}, c.Keys())
	assert.Equal(t, 2, c.Size())

	assert.Equal(t, 1, c.RemoveExpired())
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, int64(0), c.Stats().Hits(), "Range must not count reads")
}

func TestTTLCache_StartAndClose(t *testing.T) {
	c, err := NewTTL[int](10 * time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Start(ctx, 5*time.Millisecond))
	assert.True(t, errors.IsInvalid(c.Start(ctx, 5*time.Millisecond)))

	_, _ = c.Set("a", 1)
	require.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestTTLCache_CloseWithoutStart(t *testing.T) {
	c, err := NewTTL[int](time.Second)
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestTTLCache_Concurrency(t *testing.T) {
	c, err := NewTTL[int](time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n))
			for j := 0; j < 100; j++ {
				_, _ = c.Set(key, j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, c.Size())
	assert.Equal(t, int64(1600), c.Stats().Hits())
}

func TestStatistics_HitRatio(t *testing.T) {
	s := NewStatistics()
	assert.Equal(t, 0.0, s.HitRatio())

	s.Hit()
	s.Hit()
	s.Miss()
	assert.InDelta(t, 2.0/3.0, s.HitRatio(), 1e-9)

	s.UpdateSize(4)
	s.UpdateSize(2)
	summary := s.Summary()
	assert.Equal(t, int64(2), summary.CurrentSize)
	assert.Equal(t, int64(4), summary.MaxSize)

	s.Reset()
	assert.Equal(t, int64(0), s.Hits())
}

func TestTTLCache_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c, err := NewTTL[int](time.Minute, WithMetrics[int](registry, "widgets"))
	require.NoError(t, err)

	_, _ = c.Set("a", 1)
	c.Get("a")
	c.Get("missing")

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "semwidgets_cache_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[labelValue(m, "op")] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, counts["hit"])
	assert.Equal(t, 1.0, counts["miss"])
	assert.Equal(t, 1.0, counts["set"])

	// Second cache with the same prefix conflicts
	_, err = NewTTL[int](time.Minute, WithMetrics[int](registry, "widgets"))
	assert.Error(t, err)
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
