package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit(t *testing.T) {
	assert.Nil(t, Split("$"))
	assert.Nil(t, Split(""))
	assert.Equal(t, []string{"a", "b"}, Split("$.a.b"))
	assert.Equal(t, []string{"a", "0", "b"}, Split("a[0].b"))
	assert.Equal(t, []string{"a", "0", "b"}, Split("a.0.b"))
}

func TestGet(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"items": []any{
				map[string]any{"name": "first"},
				map[string]any{"name": "second"},
			},
		},
		"count": 2,
	}

	tests := []struct {
		path  string
		want  any
		found bool
	}{
		{"$", doc, true},
		{"count", 2, true},
		{"$.data.items[1].name", "second", true},
		{"data.items.0.name", "first", true},
		{"data.items[5].name", nil, false},
		{"data.missing.name", nil, false},
		{"count.value", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Get(doc, tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGet_TypedValues(t *testing.T) {
	doc := map[string][]int{"values": {7, 8, 9}}
	assert.Equal(t, 8, Lookup(doc, "values[1]"))
	assert.Nil(t, Lookup(doc, "values[x]"))

	type key string
	typed := map[key]string{"k": "v"}
	assert.Equal(t, "v", Lookup(typed, "k"))
}

func TestCovers(t *testing.T) {
	assert.True(t, Covers("base.deviceId", "base.deviceId"))
	assert.True(t, Covers("dataSource", "dataSource.sources.0"))
	assert.False(t, Covers("base.device", "base.deviceId"))
}

func TestDiff(t *testing.T) {
	before := map[string]any{
		"deviceId": "d1",
		"style":    map[string]any{"color": "red", "size": 2},
		"gone":     true,
		"list":     []any{1, 2},
	}
	after := map[string]any{
		"deviceId": "d2",
		"style":    map[string]any{"color": "red", "size": 3},
		"added":    map[string]any{"x": 1},
		"list":     []any{1, 2},
	}

	assert.Equal(t, []string{"base.added.x", "base.deviceId", "base.gone", "base.style.size"},
		Diff("base", before, after))
	assert.Empty(t, Diff("base", before, before))
}
