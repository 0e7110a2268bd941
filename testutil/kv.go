package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/c360/semwidgets/errors"
)

// MockKV is an in-memory key-value bucket with per-bucket revisions.
type MockKV struct {
	mu       sync.RWMutex
	data     map[string][]byte
	revs     map[string]uint64
	revision uint64
	failWith error
}

// NewMockKV creates an empty bucket.
func NewMockKV() *MockKV {
	return &MockKV{data: make(map[string][]byte), revs: make(map[string]uint64)}
}

// FailWith makes every later call return err. A nil err restores success.
func (kv *MockKV) FailWith(err error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.failWith = err
}

// Get returns the value and revision of key, or an error wrapping errors.ErrNotFound.
func (kv *MockKV) Get(_ context.Context, key string) ([]byte, uint64, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	if kv.failWith != nil {
		return nil, 0, kv.failWith
	}
	v, ok := kv.data[key]
	if !ok {
		return nil, 0, fmt.Errorf("key %s: %w", key, errors.ErrNotFound)
	}
	return append([]byte(nil), v...), kv.revs[key], nil
}

// Put stores value and returns the new revision.
func (kv *MockKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.failWith != nil {
		return 0, kv.failWith
	}
	kv.revision++
	kv.data[key] = append([]byte(nil), value...)
	kv.revs[key] = kv.revision
	return kv.revision, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *MockKV) Delete(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.failWith != nil {
		return kv.failWith
	}
	delete(kv.data, key)
	delete(kv.revs, key)
	return nil
}

// Keys returns the stored keys, sorted.
func (kv *MockKV) Keys(_ context.Context) ([]string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	if kv.failWith != nil {
		return nil, kv.failWith
	}
	keys := make([]string, 0, len(kv.data))
	for k := range kv.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
