package redisclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/semwidgets/errors"
)

// DefaultKVTimeout bounds a single key-value operation.
const DefaultKVTimeout = 5 * time.Second

// putScript bumps the namespace revision and stores value with it in one step.
var putScript = redis.NewScript(`
local rev = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1], 'value', ARGV[1], 'rev', rev)
return rev
`)

// KVStore stores each key as a hash {value, rev} under "<prefix>:k:<key>".
// Revisions come from a counter at "<prefix>:rev" and increase across all
// keys of the namespace, like a JetStream bucket sequence.
type KVStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewKVStore wraps client. An empty prefix selects "semwidgets" and a
// non-positive timeout selects DefaultKVTimeout.
func NewKVStore(client redis.UniversalClient, prefix string, timeout time.Duration) *KVStore {
	if prefix == "" {
		prefix = "semwidgets"
	}
	if timeout <= 0 {
		timeout = DefaultKVTimeout
	}
	return &KVStore{client: client, prefix: strings.TrimSuffix(prefix, ":"), timeout: timeout}
}

func (kv *KVStore) key(k string) string { return kv.prefix + ":k:" + k }

func (kv *KVStore) revKey() string { return kv.prefix + ":rev" }

// Get returns the value of key and its revision.
func (kv *KVStore) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, kv.timeout)
	defer cancel()

	vals, err := kv.client.HMGet(ctx, kv.key(key), "value", "rev").Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, 0, fmt.Errorf("redis get %s: %w", key, errors.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return nil, 0, fmt.Errorf("redis get %s: %w", key, errors.ErrNotFound)
	}

	value, _ := vals[0].(string)
	var rev uint64
	if s, ok := vals[1].(string); ok {
		rev, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("redis get %s: bad revision %q", key, s)
		}
	}
	return []byte(value), rev, nil
}

// Put stores value under key without a revision check (last writer wins).
func (kv *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, kv.timeout)
	defer cancel()

	rev, err := putScript.Run(ctx, kv.client, []string{kv.key(key), kv.revKey()}, value).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis put %s: %w", key, err)
	}
	return uint64(rev), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (kv *KVStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, kv.timeout)
	defer cancel()

	if err := kv.client.Del(ctx, kv.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys of the namespace in sorted order.
func (kv *KVStore) Keys(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, kv.timeout)
	defer cancel()

	prefix := kv.key("")
	keys := []string{}
	iter := kv.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
