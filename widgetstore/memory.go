package widgetstore

import (
	"context"
	"sort"
	"sync"

	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/pkg/timestamp"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	widgets map[string]*Widget
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{widgets: make(map[string]*Widget)}
}

// Get returns a copy of the widget.
func (s *MemoryStore) Get(_ context.Context, id string) (*Widget, error) {
	s.mu.RLock()
	w, ok := s.widgets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, notFound("Get", id)
	}
	return clone(w)
}

// Put stores a copy of w, bumping its version.
func (s *MemoryStore) Put(_ context.Context, w *Widget) error {
	if err := validate("Put", w); err != nil {
		return err
	}
	stored, err := clone(w)
	if err != nil {
		return errors.WrapInvalid(err, "widgetstore", "Put", "copy widget")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.widgets[w.ID]; ok {
		stored.Version = prev.Version
	}
	stored.Version++
	stored.UpdatedAt = timestamp.Now()
	s.widgets[w.ID] = stored

	w.Version = stored.Version
	w.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete removes a widget. Deleting an unknown id is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.widgets, id)
	s.mu.Unlock()
	return nil
}

// List returns copies of every widget ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]*Widget, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.widgets))
	for id := range s.widgets {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]*Widget, 0, len(ids))
	for _, id := range ids {
		s.mu.RLock()
		w, ok := s.widgets[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		c, err := clone(w)
		if err != nil {
			return nil, errors.Wrap(err, "widgetstore", "List", "copy widget")
		}
		out = append(out, c)
	}
	return out, nil
}
