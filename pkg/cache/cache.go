// Package cache provides a generic, thread-safe TTL cache with built-in statistics,
// an injectable clock and optional Prometheus metrics.
//
// Expiry is evaluated against the TTL in force at read time, so changing the TTL
// with SetTTL applies to entries that are already stored.
package cache

import (
	"time"

	"github.com/c360/semwidgets/errors"
)

// Cache represents a generic cache interface parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found and fresh.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry was created.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of stored entries, fresh or not yet purged.
	Size() int

	// Keys returns the keys of all fresh entries.
	Keys() []string

	// Range calls fn for every fresh entry until fn returns false.
	Range(fn func(key string, value V) bool)

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close stops background maintenance and releases resources.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

// Clock supplies the current time. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
