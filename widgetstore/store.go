// Package widgetstore holds widget configurations: the configuration store the
// data bridge reads fresh on every execution, and the node properties used as
// a binding fallback.
//
// Two backends implement Store. MemoryStore keeps records in process memory;
// KVStore keeps them as JSON in a key-value bucket such as a NATS JetStream KV
// bucket. Editor wraps either one and emits configuration change events on
// the event bus around every section update.
package widgetstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
)

// Widget is one stored widget configuration.
type Widget struct {
	ID         string                  `json:"id" yaml:"id"`
	Type       string                  `json:"type" yaml:"type"`
	Config     datasource.WidgetConfig `json:"config" yaml:"config"`
	Properties map[string]any          `json:"properties,omitempty" yaml:"properties,omitempty"`
	Version    uint64                  `json:"version" yaml:"-"`
	UpdatedAt  int64                   `json:"updatedAt" yaml:"-"`
}

// Node is the editor view of a widget used for property binding.
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Store persists widgets. Get of an unknown id returns an error matching
// errors.ErrNotFound.
type Store interface {
	Get(ctx context.Context, id string) (*Widget, error)
	Put(ctx context.Context, w *Widget) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Widget, error)
}

func notFound(method, id string) error {
	return errors.WrapInvalid(fmt.Errorf("widget %s: %w", id, errors.ErrNotFound), "widgetstore", method, "lookup widget")
}

func validate(method string, w *Widget) error {
	if w == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "widgetstore", method, "widget cannot be nil")
	}
	if w.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "widgetstore", method, "widget ID cannot be empty")
	}
	return nil
}

// clone deep-copies a widget through its JSON form so stored records never
// share maps with callers.
func clone(w *Widget) (*Widget, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var out Widget
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
