// Package eventbus fans configuration change events out to subscribers.
//
// Every emission computes its delivery types from the event section, runs the
// global filters by descending priority and then calls every matching handler
// concurrently, waiting for all of them. A failing or panicking handler is
// counted and logged; it never affects other handlers or the emitter.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/metric"
	"github.com/c360/semwidgets/pkg/timestamp"
)

// Handler processes one delivered event. Event.Type holds the delivered type.
type Handler func(ctx context.Context, ev Event) error

// Predicate decides whether an emission proceeds.
type Predicate func(ev Event) bool

type subscription struct {
	id      uint64
	handler Handler
}

type filter struct {
	id        uint64
	name      string
	priority  int
	predicate Predicate
}

// Stats counts bus activity.
type Stats struct {
	Emitted         int64            `json:"emitted"`
	Filtered        int64            `json:"filtered"`
	Delivered       int64            `json:"delivered"`
	HandlerFailures int64            `json:"handlerFailures"`
	ByType          map[string]int64 `json:"byType"`
	Subscribers     int              `json:"subscribers"`
	Filters         int              `json:"filters"`
}

// Bus is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	filters  []filter
	nextID   uint64
	closed   bool

	emitted   atomic.Int64
	filtered  atomic.Int64
	delivered atomic.Int64
	failures  atomic.Int64
	statsMu   sync.Mutex
	byType    map[string]int64

	metrics *busMetrics
	logger  *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a bus. A nil registry disables metrics.
func New(registry *metric.MetricsRegistry, opts ...Option) (*Bus, error) {
	m, err := newBusMetrics(registry)
	if err != nil {
		return nil, errors.Wrap(err, "eventbus", "New", "register metrics")
	}
	b := &Bus{
		handlers: make(map[string][]subscription),
		byType:   make(map[string]int64),
		metrics:  m,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// OnConfigChange subscribes handler to eventType, or to every type with TypeAll.
// The returned function unsubscribes and is safe to call more than once.
func (b *Bus) OnConfigChange(eventType string, handler Handler) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[eventType]
			for i, s := range subs {
				if s.id == id {
					b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.handlers[eventType]) == 0 {
				delete(b.handlers, eventType)
			}
		})
	}
}

// AddFilter registers a global filter. Higher priorities run first. A predicate
// returning false vetoes the emission; a panicking predicate lets it pass.
func (b *Bus) AddFilter(name string, priority int, predicate Predicate) (remove func()) {
	if predicate == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.filters = append(b.filters, filter{id: id, name: name, priority: priority, predicate: predicate})
	sort.SliceStable(b.filters, func(i, j int) bool { return b.filters[i].priority > b.filters[j].priority })
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, f := range b.filters {
			if f.id == id {
				b.filters = append(b.filters[:i:i], b.filters[i+1:]...)
				return
			}
		}
	}
}

// EmitConfigChange delivers ev as config-changed plus the section specific type
// and returns once every handler has finished.
func (b *Bus) EmitConfigChange(ctx context.Context, ev Event) error {
	return b.emit(ctx, ev, DerivedTypes(ev.Section))
}

// Emit delivers ev as exactly eventType, e.g. before-config-change.
func (b *Bus) Emit(ctx context.Context, eventType string, ev Event) error {
	return b.emit(ctx, ev, []string{eventType})
}

func (b *Bus) emit(ctx context.Context, ev Event, types []string) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.WrapFatal(errors.ErrShuttingDown, "eventbus", "Emit", "deliver event")
	}
	filters := append([]filter(nil), b.filters...)
	b.mu.RUnlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = timestamp.Now()
	}
	b.emitted.Add(1)

	for _, f := range filters {
		if !b.allow(f, ev) {
			b.filtered.Add(1)
			b.metrics.recordFiltered()
			b.logger.Debug("event vetoed by filter",
				"filter", f.name, "event_id", ev.ID, "component_id", ev.ComponentID)
			return nil
		}
	}

	var wg sync.WaitGroup
	for _, t := range types {
		delivery := ev
		delivery.Type = t
		b.countType(t)
		b.metrics.recordEmitted(t)
		for _, sub := range b.subscribers(t) {
			wg.Add(1)
			go func(h Handler, d Event) {
				defer wg.Done()
				b.deliver(ctx, h, d)
			}(sub.handler, delivery)
		}
	}
	wg.Wait()
	return nil
}

func (b *Bus) allow(f filter, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event filter panicked, letting event through",
				"filter", f.name, "event_id", ev.ID, "panic", fmt.Sprint(r))
			ok = true
		}
	}()
	return f.predicate(ev)
}

func (b *Bus) subscribers(eventType string) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := append([]subscription(nil), b.handlers[eventType]...)
	return append(out, b.handlers[TypeAll]...)
}

func (b *Bus) deliver(ctx context.Context, h Handler, ev Event) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		err = h(ctx, ev)
	}()

	b.delivered.Add(1)
	if err != nil {
		b.failures.Add(1)
		b.metrics.recordFailure(ev.Type)
		b.logger.Warn("event handler failed",
			"event_type", ev.Type, "event_id", ev.ID, "component_id", ev.ComponentID, "error", err)
	}
}

func (b *Bus) countType(t string) {
	b.statsMu.Lock()
	b.byType[t]++
	b.statsMu.Unlock()
}

// Stats returns a copy of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subscribers := 0
	for _, subs := range b.handlers {
		subscribers += len(subs)
	}
	filters := len(b.filters)
	b.mu.RUnlock()

	b.statsMu.Lock()
	byType := make(map[string]int64, len(b.byType))
	for k, v := range b.byType {
		byType[k] = v
	}
	b.statsMu.Unlock()

	return Stats{
		Emitted:         b.emitted.Load(),
		Filtered:        b.filtered.Load(),
		Delivered:       b.delivered.Load(),
		HandlerFailures: b.failures.Load(),
		ByType:          byType,
		Subscribers:     subscribers,
		Filters:         filters,
	}
}

// Close rejects further emissions and drops every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]subscription)
	b.filters = nil
}
