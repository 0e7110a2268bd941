package chain

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/executor"
)

type countingExecutor struct {
	calls atomic.Int32
	delay time.Duration
}

func (c *countingExecutor) Type() datasource.ItemType { return "counting" }

func (c *countingExecutor) Execute(ctx context.Context, in executor.Input) datasource.Result {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
		}
	}
	return datasource.Succeeded(map[string]any{"calls": c.calls.Load()})
}

type mapCache map[string]any

func (m mapCache) GetSourceData(componentID, sourceID string) (any, bool) {
	v, ok := m[componentID+"/"+sourceID]
	return v, ok
}

func newRegistry(t *testing.T) *executor.Registry {
	t.Helper()
	r := executor.NewRegistry()
	require.NoError(t, executor.RegisterDefaults(r, executor.Defaults{}))
	return r
}

func jsonItem(s string) datasource.DataItem {
	return datasource.DataItem{
		Item: datasource.Item{
			Type:   datasource.ItemJSON,
			Config: datasource.ItemConfig{"jsonString": s},
		},
		Processing: datasource.Processing{FilterPath: "$"},
	}
}

func staticItem(data any) datasource.DataItem {
	return datasource.DataItem{
		Item: datasource.Item{
			Type:   datasource.ItemStatic,
			Config: datasource.ItemConfig{"data": data},
		},
	}
}

func config(sources ...datasource.SourceEntry) *datasource.Configuration {
	return &datasource.Configuration{ComponentID: "comp1", DataSources: sources}
}

func source(id string, merge datasource.MergeType, items ...datasource.DataItem) datasource.SourceEntry {
	return datasource.SourceEntry{
		SourceID:      id,
		DataItems:     items,
		MergeStrategy: datasource.MergeStrategy{Type: merge},
	}
}

func TestExecute_SingleJSONItem(t *testing.T) {
	c := New(newRegistry(t))

	out := c.Execute(context.Background(),
		config(source("dataSource1", datasource.MergeObject, jsonItem(`{"temperature":25,"humidity":60}`))),
		Options{})

	require.True(t, out.Success)
	want := map[string]any{"temperature": float64(25), "humidity": float64(60)}
	assert.Equal(t, map[string]any{"dataSource1": want}, out.Sources())
	assert.Equal(t, map[string]any{"dataSource1": want}, out.ComponentData[CompleteKey])
	require.Len(t, out.Items, 1)
	assert.True(t, out.Items[0].Success)
	assert.False(t, out.FromCache)
}

func TestExecute_MergeStrategies(t *testing.T) {
	a, b := jsonItem(`{"a":1}`), jsonItem(`{"b":2}`)

	tests := []struct {
		name  string
		merge datasource.MergeType
		items []datasource.DataItem
		want  any
	}{
		{"object", datasource.MergeObject, []datasource.DataItem{a, b},
			map[string]any{"a": float64(1), "b": float64(2)}},
		{"array", datasource.MergeArray, []datasource.DataItem{a, b},
			[]any{map[string]any{"a": float64(1)}, map[string]any{"b": float64(2)}}},
		{"replace", datasource.MergeReplace, []datasource.DataItem{a, b},
			map[string]any{"b": float64(2)}},
		{"array flattens lists", datasource.MergeArray,
			[]datasource.DataItem{jsonItem(`[1,2]`), staticItem("x")},
			[]any{float64(1), float64(2), "x"}},
		{"object keys scalars by index", datasource.MergeObject,
			[]datasource.DataItem{a, staticItem(7)},
			map[string]any{"a": float64(1), "item_1": 7}},
		{"object later keys win", datasource.MergeObject,
			[]datasource.DataItem{jsonItem(`{"a":1}`), jsonItem(`{"a":2}`)},
			map[string]any{"a": float64(2)}},
	}

	c := New(newRegistry(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := c.Execute(context.Background(), config(source("s", tt.merge, tt.items...)), Options{})
			require.True(t, out.Success)
			assert.Equal(t, tt.want, out.ComponentData["s"])
		})
	}
}

func TestExecute_ReplaceFallsBackToLastSuccess(t *testing.T) {
	broken := jsonItem(`{not json`)
	broken.Processing.DefaultValue = "fallback"

	c := New(newRegistry(t))
	out := c.Execute(context.Background(),
		config(source("s", datasource.MergeReplace, jsonItem(`{"ok":true}`), broken)), Options{})

	require.True(t, out.Success)
	assert.Equal(t, map[string]any{"ok": true}, out.ComponentData["s"])
}

func TestExecute_FailureIsolation(t *testing.T) {
	failing := datasource.DataItem{
		Item: datasource.Item{
			Type:   datasource.ItemHTTP,
			Config: datasource.ItemConfig{"url": "not a url"},
		},
		Processing: datasource.Processing{DefaultValue: map[string]any{"offline": true}},
	}

	c := New(newRegistry(t))
	out := c.Execute(context.Background(), config(
		source("remote", datasource.MergeObject, failing),
		source("local", datasource.MergeObject, staticItem(map[string]any{"v": 1})),
	), Options{})

	require.True(t, out.Success)
	assert.Equal(t, map[string]any{"offline": true}, out.ComponentData["remote"])
	assert.Equal(t, map[string]any{"v": 1}, out.ComponentData["local"])

	require.Len(t, out.Items, 2)
	assert.False(t, out.Items[0].Success)
	assert.NotEmpty(t, out.Items[0].ErrorCode)
	assert.True(t, out.Items[1].Success)
}

func TestExecute_FailedItemWithoutDefaultIsNil(t *testing.T) {
	c := New(newRegistry(t))
	out := c.Execute(context.Background(),
		config(source("s", datasource.MergeObject, jsonItem(""))), Options{})

	require.True(t, out.Success)
	v, ok := out.ComponentData["s"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, datasource.CodeJSONNoContent, out.Items[0].ErrorCode)
}

func TestExecute_AllSourcesFailedStillSucceeds(t *testing.T) {
	c := New(newRegistry(t))
	out := c.Execute(context.Background(), config(
		source("a", datasource.MergeObject, jsonItem("")),
		source("b", datasource.MergeObject, jsonItem("{broken")),
	), Options{})

	require.True(t, out.Success)
	assert.Nil(t, out.ComponentData["a"])
	assert.Nil(t, out.ComponentData["b"])
	require.Len(t, out.Items, 2)
	for _, item := range out.Items {
		assert.False(t, item.Success)
		assert.NotEmpty(t, item.ErrorCode)
	}
}

func TestExecute_FilterPathAndScript(t *testing.T) {
	item := jsonItem(`{"reading":{"celsius":20}}`)
	item.Processing.FilterPath = "$.reading.celsius"
	item.Processing.CustomScript = "data * 9 / 5 + 32 + params.offset"

	c := New(newRegistry(t))
	out := c.Execute(context.Background(),
		config(source("s", datasource.MergeObject, item)),
		Options{Params: map[string]any{"offset": 1}})

	require.True(t, out.Success)
	assert.EqualValues(t, 69, out.ComponentData["s"])
}

func TestExecute_ScriptErrorUsesDefault(t *testing.T) {
	item := jsonItem(`{"a":1}`)
	item.Processing.CustomScript = "data.a +"
	item.Processing.DefaultValue = 0

	c := New(newRegistry(t))
	out := c.Execute(context.Background(), config(source("s", datasource.MergeObject, item)), Options{})

	require.True(t, out.Success)
	assert.Equal(t, 0, out.ComponentData["s"])
	assert.Equal(t, datasource.CodeTransformError, out.Items[0].ErrorCode)
}

func TestExecute_UnknownExecutorFailsRun(t *testing.T) {
	item := staticItem(1)
	item.Item.Type = "mqtt"

	c := New(newRegistry(t))
	out := c.Execute(context.Background(), config(source("s", datasource.MergeObject, item)), Options{})

	assert.False(t, out.Success)
	assert.Equal(t, datasource.CodeExecutorNotFound, out.ErrorCode)
	assert.Nil(t, out.ComponentData)
}

func TestExecute_EmptyConfiguration(t *testing.T) {
	c := New(newRegistry(t))

	assert.Equal(t, datasource.CodeInvalidConfig, c.Execute(context.Background(), nil, Options{}).ErrorCode)
	assert.False(t, c.Execute(context.Background(), config(), Options{}).Success)
}

func TestExecute_ItemsRunConcurrently(t *testing.T) {
	slow := &countingExecutor{delay: 50 * time.Millisecond}
	r := executor.NewRegistry()
	require.NoError(t, r.Register(slow))

	item := datasource.DataItem{Item: datasource.Item{Type: "counting"}}
	cfg := config(
		source("a", datasource.MergeArray, item, item, item),
		source("b", datasource.MergeObject, item),
	)

	start := time.Now()
	out := New(r).Execute(context.Background(), cfg, Options{})

	require.True(t, out.Success)
	assert.EqualValues(t, 4, slow.calls.Load())
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestExecute_CacheShortCircuit(t *testing.T) {
	counter := &countingExecutor{}
	r := executor.NewRegistry()
	require.NoError(t, r.Register(counter))

	item := datasource.DataItem{Item: datasource.Item{Type: "counting"}}
	cfg := config(source("s1", datasource.MergeObject, item), source("s2", datasource.MergeObject, item))

	cache := mapCache{"comp1/s1": "cached-1", "comp1/s2": "cached-2"}
	c := New(r, WithCache(cache))

	out := c.Execute(context.Background(), cfg, Options{})
	require.True(t, out.Success)
	assert.True(t, out.FromCache)
	assert.Equal(t, "cached-1", out.ComponentData["s1"])
	assert.Zero(t, counter.calls.Load())

	out = c.Execute(context.Background(), cfg, Options{ForceRefresh: true})
	assert.False(t, out.FromCache)
	assert.EqualValues(t, 2, counter.calls.Load())

	delete(cache, "comp1/s2")
	out = c.Execute(context.Background(), cfg, Options{})
	assert.False(t, out.FromCache)
	assert.EqualValues(t, 4, counter.calls.Load())
}
