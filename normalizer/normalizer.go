// Package normalizer converts the historical data configuration shapes into the
// canonical datasource.Configuration.
//
// Normalize never fails: unrecognized input is wrapped as a single static data
// item so a component always has something to render. ConvertFromStandard
// performs the reverse mapping and is lossy for custom scripts.
package normalizer

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/pkg/timestamp"
)

// Normalize converts v, in any supported shape, into a canonical configuration
// for componentID. Canonical input keeps its own component id and timestamps.
func Normalize(v any, componentID string) *datasource.Configuration {
	if cfg, ok := canonicalValue(v); ok {
		return finish(cfg, componentID)
	}

	generic, ok := toGeneric(v)
	if !ok {
		return fallback(v, componentID)
	}

	var cfg *datasource.Configuration
	switch Detect(generic) {
	case ShapeCanonical:
		cfg = fromCanonical(generic.(map[string]any))
	case ShapeSimpleEditor:
		cfg = fromSimpleEditor(generic.(map[string]any))
	case ShapeImportExport:
		cfg = fromImportExport(generic.(map[string]any))
	case ShapeExecutorResult:
		cfg = fromExecutorResult(generic.(map[string]any))
	case ShapeSingleItem:
		cfg = fromSingleItem(generic.(map[string]any))
	}
	if cfg == nil || len(cfg.DataSources) == 0 {
		return fallback(generic, componentID)
	}
	return finish(cfg, componentID)
}

// DetectValue classifies any input accepted by Normalize.
func DetectValue(v any) Shape {
	if _, ok := canonicalValue(v); ok {
		return ShapeCanonical
	}
	generic, ok := toGeneric(v)
	if !ok {
		return ShapeUnknown
	}
	return Detect(generic)
}

func canonicalValue(v any) (*datasource.Configuration, bool) {
	switch c := v.(type) {
	case *datasource.Configuration:
		if c == nil {
			return nil, false
		}
		return c.Clone(), true
	case datasource.Configuration:
		return c.Clone(), true
	}
	return nil, false
}

// toGeneric decodes v into plain JSON values (maps, slices, scalars).
func toGeneric(v any) (any, bool) {
	switch raw := v.(type) {
	case nil:
		return nil, true
	case map[string]any, []any, bool, float64:
		return raw, true
	case []byte:
		return decodeText(string(raw))
	case json.RawMessage:
		return decodeText(string(raw))
	case string:
		return decodeText(raw)
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var out any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, false
	}
	return out, true
}

// decodeText parses JSON text. Text that is not JSON is kept as a string value.
func decodeText(s string) (any, bool) {
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s, true
	}
	return out, true
}

func fallback(raw any, componentID string) *datasource.Configuration {
	cfg := &datasource.Configuration{
		DataSources: []datasource.SourceEntry{{
			SourceID: datasource.DefaultSourceID(0),
			DataItems: []datasource.DataItem{{
				Item: datasource.Item{
					Type:   datasource.ItemStatic,
					Config: datasource.ItemConfig{"data": raw},
				},
				Processing: datasource.Processing{FilterPath: "$"},
			}},
			MergeStrategy: datasource.MergeStrategy{Type: datasource.MergeObject},
		}},
	}
	return finish(cfg, componentID)
}

// finish fills defaults. It is idempotent on its own output.
func finish(cfg *datasource.Configuration, componentID string) *datasource.Configuration {
	if cfg.ComponentID == "" {
		cfg.ComponentID = componentID
	}
	now := timestamp.Now()
	if cfg.CreatedAt == 0 {
		cfg.CreatedAt = now
	}
	if cfg.UpdatedAt == 0 {
		cfg.UpdatedAt = cfg.CreatedAt
	}
	seen := map[string]int{}
	for i := range cfg.DataSources {
		src := &cfg.DataSources[i]
		if src.SourceID == "" {
			src.SourceID = datasource.DefaultSourceID(i)
		}
		if n := seen[src.SourceID]; n > 0 {
			src.SourceID = fmt.Sprintf("%s_%d", src.SourceID, n)
		}
		seen[src.SourceID]++
		if !src.MergeStrategy.Type.Valid() {
			src.MergeStrategy.Type = datasource.MergeObject
		}
		for j := range src.DataItems {
			item := &src.DataItems[j]
			if item.Item.Config == nil {
				item.Item.Config = datasource.ItemConfig{}
			}
			if item.Processing.FilterPath == "" {
				item.Processing.FilterPath = "$"
			}
		}
	}
	return cfg
}

func fromCanonical(m map[string]any) *datasource.Configuration {
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var cfg datasource.Configuration
	if err := json.Unmarshal(encoded, &cfg); err != nil {
		// Wrong field types inside an otherwise canonical layout.
		return fromSimpleEditor(m)
	}
	return &cfg
}

func fromSimpleEditor(m map[string]any) *datasource.Configuration {
	cfg := &datasource.Configuration{
		ComponentID: stringOf(m["componentId"]),
		CreatedAt:   timestamp.Parse(m["createdAt"]),
		UpdatedAt:   timestamp.Parse(m["updatedAt"]),
	}
	sources, _ := m["dataSources"].([]any)
	for i, s := range sources {
		src, _ := s.(map[string]any)
		entry := datasource.SourceEntry{
			SourceID:      stringOf(src["sourceId"]),
			MergeStrategy: mergeOf(src["mergeStrategy"]),
		}
		if entry.SourceID == "" {
			entry.SourceID = datasource.DefaultSourceID(i)
		}
		items, _ := src["dataItems"].([]any)
		for _, it := range items {
			if item, ok := itemOf(it); ok {
				entry.DataItems = append(entry.DataItems, item)
			}
		}
		if len(entry.DataItems) > 0 {
			cfg.DataSources = append(cfg.DataSources, entry)
		}
	}
	return cfg
}

func fromImportExport(m map[string]any) *datasource.Configuration {
	dsc := m["dataSourceConfig"].(map[string]any)
	merge := mergeOf(dsc["mergeStrategy"])
	items, _ := dsc["dataItems"].([]any)

	cfg := &datasource.Configuration{
		ComponentID: stringOf(m["componentId"]),
		CreatedAt:   timestamp.Parse(m["createdAt"]),
		UpdatedAt:   timestamp.Parse(m["updatedAt"]),
	}

	// Items may be tagged with the source they belong to; untagged items share one source.
	index := map[string]int{}
	for _, it := range items {
		item, ok := itemOf(it)
		if !ok {
			continue
		}
		sourceID := ""
		if raw, ok := it.(map[string]any); ok {
			sourceID = stringOf(raw["sourceId"])
		}
		if sourceID == "" {
			sourceID = datasource.DefaultSourceID(0)
		}
		pos, exists := index[sourceID]
		if !exists {
			pos = len(cfg.DataSources)
			index[sourceID] = pos
			cfg.DataSources = append(cfg.DataSources, datasource.SourceEntry{
				SourceID:      sourceID,
				MergeStrategy: merge,
			})
		}
		cfg.DataSources[pos].DataItems = append(cfg.DataSources[pos].DataItems, item)
	}
	return cfg
}

func fromExecutorResult(m map[string]any) *datasource.Configuration {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := &datasource.Configuration{}
	for _, sourceID := range keys {
		entry := m[sourceID].(map[string]any)
		cfg.DataSources = append(cfg.DataSources, datasource.SourceEntry{
			SourceID: sourceID,
			DataItems: []datasource.DataItem{{
				Item: datasource.Item{
					Type:   datasource.ItemStatic,
					Config: datasource.ItemConfig{"data": entry["data"]},
				},
				Processing: datasource.Processing{FilterPath: "$"},
			}},
			MergeStrategy: datasource.MergeStrategy{Type: datasource.MergeObject},
		})
	}
	return cfg
}

func fromSingleItem(m map[string]any) *datasource.Configuration {
	item, ok := itemOf(m)
	if !ok {
		return nil
	}
	return &datasource.Configuration{
		DataSources: []datasource.SourceEntry{{
			SourceID:      datasource.DefaultSourceID(0),
			DataItems:     []datasource.DataItem{item},
			MergeStrategy: datasource.MergeStrategy{Type: datasource.MergeObject},
		}},
	}
}

// itemOf reads a data item in wrapped ({item, processing}) or flat
// ({type, config, filterPath, ...}) form.
func itemOf(v any) (datasource.DataItem, bool) {
	raw, ok := v.(map[string]any)
	if !ok {
		return datasource.DataItem{}, false
	}

	itemMap := raw
	if wrapped, ok := raw["item"].(map[string]any); ok {
		itemMap = wrapped
	}
	itemType := datasource.ItemType(stringOf(itemMap["type"]))
	if itemType == "" {
		return datasource.DataItem{}, false
	}
	config, _ := itemMap["config"].(map[string]any)

	procMap := raw
	if wrapped, ok := raw["processing"].(map[string]any); ok {
		procMap = wrapped
	}
	return datasource.DataItem{
		Item: datasource.Item{Type: itemType, Config: datasource.ItemConfig(config)},
		Processing: datasource.Processing{
			FilterPath:   stringOf(procMap["filterPath"]),
			CustomScript: stringOf(procMap["customScript"]),
			DefaultValue: procMap["defaultValue"],
		},
	}, true
}

func mergeOf(v any) datasource.MergeStrategy {
	switch m := v.(type) {
	case string:
		return datasource.MergeStrategy{Type: datasource.MergeType(m)}
	case map[string]any:
		return datasource.MergeStrategy{Type: datasource.MergeType(stringOf(m["type"]))}
	}
	return datasource.MergeStrategy{}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
