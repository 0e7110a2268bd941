package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/errors"
)

type reloads struct {
	mu   sync.Mutex
	cfgs []*Config
}

func (r *reloads) add(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfgs = append(r.cfgs, cfg)
}

func (r *reloads) last() (*Config, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfgs) == 0 {
		return nil, 0
	}
	return r.cfgs[len(r.cfgs)-1], len(r.cfgs)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeFile(t, "semwidgets.yaml", "flow:\n  debounce: 100ms\n")
	l := newTestLoader(nil)
	l.AddLayer(path)
	l.EnableValidation(true)

	var got reloads
	w, err := NewWatcher(l, got.add, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o600))

	require.NoError(t, os.WriteFile(path, []byte("flow:\n  debounce: 300ms\n"), 0o600))
	require.Eventually(t, func() bool {
		cfg, _ := got.last()
		return cfg != nil && cfg.Flow.Debounce.D() == 300*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)

	_, before := got.last()
	require.NoError(t, os.WriteFile(path, []byte("flow:\n  workers: -3\n"), 0o600))
	assert.Never(t, func() bool {
		_, n := got.last()
		return n != before
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestNewWatcher_Errors(t *testing.T) {
	_, err := NewWatcher(newTestLoader(nil), func(*Config) {}, nil)
	assert.True(t, errors.IsInvalid(err))

	l := newTestLoader(nil)
	l.AddLayer(filepath.Join(t.TempDir(), "missing", "semwidgets.yaml"))
	_, err = NewWatcher(l, func(*Config) {}, nil)
	assert.True(t, errors.IsInvalid(err))

	_, err = NewWatcher(nil, func(*Config) {}, nil)
	assert.True(t, errors.IsInvalid(err))
}
