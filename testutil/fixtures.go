package testutil

import (
	"encoding/json"

	"github.com/c360/semwidgets/datasource"
)

// JSONItem is a JSON data item with identity filtering.
func JSONItem(jsonString string) datasource.DataItem {
	return datasource.DataItem{
		Item: datasource.Item{
			Type:   datasource.ItemJSON,
			Config: datasource.ItemConfig{"jsonString": jsonString},
		},
		Processing: datasource.Processing{FilterPath: "$"},
	}
}

// StaticItem is a static data item.
func StaticItem(data any) datasource.DataItem {
	return datasource.DataItem{
		Item: datasource.Item{
			Type:   datasource.ItemStatic,
			Config: datasource.ItemConfig{"data": data},
		},
		Processing: datasource.Processing{FilterPath: "$"},
	}
}

// HTTPItem is a GET data item for url with a default value used on failure.
func HTTPItem(url string, defaultValue any) datasource.DataItem {
	return datasource.DataItem{
		Item: datasource.Item{
			Type:   datasource.ItemHTTP,
			Config: datasource.ItemConfig{"url": url, "method": "GET"},
		},
		Processing: datasource.Processing{FilterPath: "$", DefaultValue: defaultValue},
	}
}

// Source is a data source merging items as objects.
func Source(sourceID string, items ...datasource.DataItem) datasource.SourceEntry {
	return datasource.SourceEntry{
		SourceID:      sourceID,
		DataItems:     items,
		MergeStrategy: datasource.MergeStrategy{Type: datasource.MergeObject},
	}
}

// Configuration is a canonical configuration for componentID.
func Configuration(componentID string, sources ...datasource.SourceEntry) *datasource.Configuration {
	return &datasource.Configuration{
		ComponentID: componentID,
		DataSources: sources,
		CreatedAt:   1700000000000,
		UpdatedAt:   1700000000000,
	}
}

// Widget is a widget configuration whose dataSource section holds cfg in its
// decoded JSON form, as a store would return it.
func Widget(deviceID string, cfg *datasource.Configuration) *datasource.WidgetConfig {
	return &datasource.WidgetConfig{
		Base:        map[string]any{"deviceId": deviceID, "title": "widget"},
		Component:   map[string]any{},
		Interaction: map[string]any{},
		DataSource:  Generic(cfg),
	}
}

// Generic converts v to its decoded JSON form. It panics on values that do not
// marshal, which only happens with broken fixtures.
func Generic(v any) map[string]any {
	out := map[string]any{}
	if v == nil {
		return out
	}
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}
