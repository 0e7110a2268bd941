package widgetstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/eventbus"
)

// EventSource tags events emitted by the editor.
const EventSource = "widgetstore"

// Editor is the write path for widget configurations. Every section update
// emits before-config-change, config-changed with its section type, and
// after-config-change, in that order.
type Editor struct {
	store  Store
	bus    *eventbus.Bus
	logger *slog.Logger
}

// NewEditor creates an editor. A nil bus disables events.
func NewEditor(store Store, bus *eventbus.Bus, logger *slog.Logger) (*Editor, error) {
	if store == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "widgetstore", "NewEditor", "store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{store: store, bus: bus, logger: logger}, nil
}

// Store returns the underlying store.
func (e *Editor) Store() Store {
	return e.store
}

// Save stores a whole widget without emitting events.
func (e *Editor) Save(ctx context.Context, w *Widget) error {
	return e.store.Put(ctx, w)
}

// Widget returns a stored widget.
func (e *Editor) Widget(ctx context.Context, id string) (*Widget, error) {
	return e.store.Get(ctx, id)
}

// GetConfiguration returns the widget configuration, or nil without error
// when no widget has that id.
func (e *Editor) GetConfiguration(ctx context.Context, componentID string) (*datasource.WidgetConfig, error) {
	w, err := e.store.Get(ctx, componentID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w.Config, nil
}

// Nodes lists every widget as an editor node.
func (e *Editor) Nodes(ctx context.Context) ([]Node, error) {
	widgets, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, 0, len(widgets))
	for _, w := range widgets {
		nodes = append(nodes, Node{ID: w.ID, Type: w.Type, Properties: nodeProperties(w)})
	}
	return nodes, nil
}

// NodeProperties returns the properties of one node, or nil when unknown.
func (e *Editor) NodeProperties(ctx context.Context, componentID string) (map[string]any, error) {
	w, err := e.store.Get(ctx, componentID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return nodeProperties(w), nil
}

// nodeProperties are the explicit properties layered over the configuration
// sections, so either a bare param name or a section path resolves.
func nodeProperties(w *Widget) map[string]any {
	props := w.Config.AsMap()
	for k, v := range w.Properties {
		props[k] = v
	}
	return props
}

// UpdateSection replaces one section of a stored widget. evContext is carried
// on every emitted event; set eventbus.ContextSkipExecution to store a change
// without re-running data sources.
func (e *Editor) UpdateSection(
	ctx context.Context, componentID, section string, newConfig, evContext map[string]any,
) (*Widget, error) {
	if !datasource.ValidSection(section) {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "widgetstore", "UpdateSection",
			fmt.Sprintf("unknown section %q", section))
	}
	w, err := e.store.Get(ctx, componentID)
	if err != nil {
		return nil, err
	}

	ev := eventbus.Event{
		ComponentID:   componentID,
		ComponentType: w.Type,
		Section:       section,
		OldConfig:     w.Config.Section(section),
		NewConfig:     newConfig,
		Context:       evContext,
		Source:        EventSource,
	}
	if err := e.emit(ctx, eventbus.TypeBeforeConfigChange, ev); err != nil {
		return nil, err
	}

	w.Config.SetSection(section, newConfig)
	if err := e.store.Put(ctx, w); err != nil {
		return nil, err
	}

	if e.bus != nil {
		if err := e.bus.EmitConfigChange(ctx, ev); err != nil {
			return w, errors.Wrap(err, "widgetstore", "UpdateSection", "emit config change")
		}
	}
	if err := e.emit(ctx, eventbus.TypeAfterConfigChange, ev); err != nil {
		return w, err
	}
	e.logger.Debug("widget section updated", "component_id", componentID, "section", section, "version", w.Version)
	return w, nil
}

func (e *Editor) emit(ctx context.Context, eventType string, ev eventbus.Event) error {
	if e.bus == nil {
		return nil
	}
	if err := e.bus.Emit(ctx, eventType, ev); err != nil {
		return errors.Wrap(err, "widgetstore", "UpdateSection", "emit "+eventType)
	}
	return nil
}
