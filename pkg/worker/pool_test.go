package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/metric"
)

func TestNewPool_NilProcessor(t *testing.T) {
	_, err := NewPool[int](1, 1, nil)
	assert.ErrorIs(t, err, ErrNilProcessor)
}

func TestPool_ProcessesWork(t *testing.T) {
	var sum atomic.Int64
	pool, err := NewPool(2, 10, func(_ context.Context, n int) error {
		sum.Add(int64(n))
		return nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, pool.Submit(1), ErrPoolNotStarted)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	assert.ErrorIs(t, pool.Start(ctx), ErrPoolAlreadyStarted)

	for i := 1; i <= 4; i++ {
		require.NoError(t, pool.Submit(i))
	}

	require.Eventually(t, func() bool { return sum.Load() == 10 }, time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(4), stats.Submitted)
	assert.Equal(t, int64(4), stats.Processed)
	assert.ErrorIs(t, pool.Submit(5), ErrPoolStopped)
}

func TestPool_QueueFull(t *testing.T) {
	block := make(chan struct{})
	pool, err := NewPool(1, 1, func(_ context.Context, _ int) error {
		<-block
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, pool.Submit(1))
	// Wait for the worker to pick up the first item so the queue slot frees up.
	require.Eventually(t, func() bool { return pool.Stats().QueueDepth == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(2))
	assert.ErrorIs(t, pool.Submit(3), ErrQueueFull)
	assert.Equal(t, int64(1), pool.Stats().Dropped)

	close(block)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_RecoversPanics(t *testing.T) {
	var processed atomic.Int64
	pool, err := NewPool(1, 4, func(_ context.Context, n int) error {
		if n == 0 {
			panic("bad item")
		}
		if n < 0 {
			return errors.New("negative")
		}
		processed.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, pool.Submit(0))
	require.NoError(t, pool.Submit(-1))
	require.NoError(t, pool.Submit(1))

	require.Eventually(t, func() bool { return processed.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(1), stats.Panics)
	assert.Equal(t, int64(2), stats.Failed)
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool, err := NewPool(1, 2, func(context.Context, int) error { return nil },
		WithMetricsRegistry[int](registry, "flow"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Submit(1))
	require.NoError(t, pool.Stop(time.Second))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["semwidgets_worker_items_total"])

	_, err = NewPool(1, 2, func(context.Context, int) error { return nil },
		WithMetricsRegistry[int](registry, "flow"))
	assert.Error(t, err)
}

func TestPool_StopBeforeStart(t *testing.T) {
	pool, err := NewPool(1, 1, func(context.Context, int) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, pool.Stop(time.Millisecond))
}
