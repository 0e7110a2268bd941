package widgetstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/pkg/timestamp"
)

// DefaultBucket is the key-value bucket holding widget configurations.
const DefaultBucket = "semwidgets_widgets"

// KV is the subset of a key-value bucket the store needs.
// *natsclient.KVStore satisfies it. Get of a missing key returns an error
// matching errors.ErrNotFound.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, uint64, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// KVStore persists widgets as JSON values keyed by widget id.
type KVStore struct {
	kv     KV
	logger *slog.Logger
}

// NewKVStore creates a store over kv.
func NewKVStore(kv KV, logger *slog.Logger) (*KVStore, error) {
	if kv == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "widgetstore", "NewKVStore", "kv bucket cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KVStore{kv: kv, logger: logger}, nil
}

// Get retrieves a widget by id.
func (s *KVStore) Get(ctx context.Context, id string) (*Widget, error) {
	if id == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "widgetstore", "Get", "widget ID cannot be empty")
	}
	data, rev, err := s.kv.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, notFound("Get", id)
		}
		return nil, errors.WrapTransient(err, "widgetstore", "Get", "get from KV")
	}

	var w Widget
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.WrapFatal(err, "widgetstore", "Get", "unmarshal widget")
	}
	if w.Version == 0 {
		w.Version = rev
	}
	return &w, nil
}

// Put stores w with the next version. Concurrent writers to one id are last
// writer wins.
func (s *KVStore) Put(ctx context.Context, w *Widget) error {
	if err := validate("Put", w); err != nil {
		return err
	}

	var version uint64
	current, err := s.Get(ctx, w.ID)
	switch {
	case err == nil:
		version = current.Version
	case !stderrors.Is(err, errors.ErrNotFound):
		return errors.WrapTransient(err, "widgetstore", "Put", "get current version")
	}

	stored := *w
	stored.Version = version + 1
	stored.UpdatedAt = timestamp.Now()
	data, err := json.Marshal(&stored)
	if err != nil {
		return errors.WrapInvalid(err, "widgetstore", "Put", "marshal widget")
	}
	if _, err := s.kv.Put(ctx, w.ID, data); err != nil {
		return errors.WrapTransient(err, "widgetstore", "Put", "put to KV")
	}

	w.Version = stored.Version
	w.UpdatedAt = stored.UpdatedAt
	s.logger.Debug("widget stored", "component_id", w.ID, "version", w.Version)
	return nil
}

// Delete removes a widget by id. Deleting an unknown id is not an error.
func (s *KVStore) Delete(ctx context.Context, id string) error {
	if err := s.kv.Delete(ctx, id); err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return errors.WrapTransient(err, "widgetstore", "Delete", "delete from KV")
	}
	return nil
}

// List retrieves every widget ordered by id. Keys deleted between listing and
// reading are skipped.
func (s *KVStore) List(ctx context.Context) ([]*Widget, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "widgetstore", "List", "list KV keys")
	}

	widgets := make([]*Widget, 0, len(keys))
	for _, key := range keys {
		w, err := s.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, errors.WrapTransient(err, "widgetstore", "List", fmt.Sprintf("get widget %s", key))
		}
		widgets = append(widgets, w)
	}
	return widgets, nil
}
