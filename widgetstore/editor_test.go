package widgetstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/eventbus"
)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) handle(_ context.Context, ev eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func newEditor(t *testing.T) (*Editor, *eventbus.Bus, *recorder) {
	t.Helper()
	bus, err := eventbus.New(nil)
	require.NoError(t, err)
	rec := &recorder{}
	bus.OnConfigChange(eventbus.TypeAll, rec.handle)

	editor, err := NewEditor(NewMemoryStore(), bus, nil)
	require.NoError(t, err)
	require.NoError(t, editor.Save(context.Background(), gauge("g1")))
	return editor, bus, rec
}

func TestEditor_UpdateSectionEmitsInOrder(t *testing.T) {
	editor, _, rec := newEditor(t)

	w, err := editor.UpdateSection(context.Background(), "g1", datasource.SectionBase,
		map[string]any{"deviceId": "dev-9"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), w.Version)

	types := rec.types()
	require.Len(t, types, 4)
	assert.Equal(t, eventbus.TypeBeforeConfigChange, types[0])
	assert.ElementsMatch(t, []string{eventbus.TypeConfigChanged, eventbus.TypeBaseConfigChanged}, types[1:3])
	assert.Equal(t, eventbus.TypeAfterConfigChange, types[3])

	ev := rec.events[0]
	assert.Equal(t, "g1", ev.ComponentID)
	assert.Equal(t, "gauge", ev.ComponentType)
	assert.Equal(t, EventSource, ev.Source)
	assert.Equal(t, "dev-1", ev.OldConfig["deviceId"])
	assert.Equal(t, "dev-9", ev.NewConfig["deviceId"])

	cfg, err := editor.GetConfiguration(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "dev-9", cfg.Base["deviceId"])
}

func TestEditor_CarriesEventContext(t *testing.T) {
	editor, _, rec := newEditor(t)

	_, err := editor.UpdateSection(context.Background(), "g1", datasource.SectionComponent,
		map[string]any{"color": "red"}, map[string]any{eventbus.ContextSkipExecution: true})
	require.NoError(t, err)

	for _, ev := range rec.events {
		assert.True(t, ev.SkipExecution(), ev.Type)
	}
	assert.Contains(t, rec.types(), eventbus.TypeComponentPropsChanged)
}

func TestEditor_UpdateSectionErrors(t *testing.T) {
	editor, bus, rec := newEditor(t)
	ctx := context.Background()

	_, err := editor.UpdateSection(ctx, "g1", "layout", nil, nil)
	assert.True(t, errors.IsInvalid(err))

	_, err = editor.UpdateSection(ctx, "missing", datasource.SectionBase, nil, nil)
	assert.True(t, errors.IsInvalid(err))
	assert.Empty(t, rec.types())

	bus.Close()
	_, err = editor.UpdateSection(ctx, "g1", datasource.SectionBase, map[string]any{"deviceId": "x"}, nil)
	require.Error(t, err)
	cfg, err := editor.GetConfiguration(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", cfg.Base["deviceId"], "store untouched when the bus is closed")
}

func TestEditor_Nodes(t *testing.T) {
	editor, _, _ := newEditor(t)
	ctx := context.Background()

	cfg, err := editor.GetConfiguration(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	props, err := editor.NodeProperties(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "C", props["unit"])
	assert.Equal(t, "dev-1", props["base"].(map[string]any)["deviceId"])

	props, err = editor.NodeProperties(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, props)

	nodes, err := editor.Nodes(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "gauge", nodes[0].Type)

	_, err = NewEditor(nil, nil, nil)
	assert.Error(t, err)
}
