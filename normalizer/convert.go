package normalizer

import (
	"encoding/json"
	"fmt"

	"github.com/c360/semwidgets/datasource"
)

// ConvertFromStandard renders cfg in the given shape. Custom scripts have no
// place in the non-canonical shapes and are dropped.
func ConvertFromStandard(cfg *datasource.Configuration, shape Shape) any {
	if cfg == nil {
		return nil
	}
	switch shape {
	case ShapeCanonical:
		out, _ := toGeneric(cfg)
		return out
	case ShapeSimpleEditor:
		sources := make([]any, 0, len(cfg.DataSources))
		for _, src := range cfg.DataSources {
			sources = append(sources, map[string]any{
				"sourceId":      src.SourceID,
				"dataItems":     flatItems(src, false),
				"mergeStrategy": string(src.MergeStrategy.Type),
			})
		}
		return map[string]any{"componentId": cfg.ComponentID, "dataSources": sources}
	case ShapeImportExport:
		var items []any
		merge := ""
		for _, src := range cfg.DataSources {
			items = append(items, flatItems(src, true)...)
			if merge == "" {
				merge = string(src.MergeStrategy.Type)
			}
		}
		return map[string]any{
			"componentId": cfg.ComponentID,
			"dataSourceConfig": map[string]any{
				"dataItems":     items,
				"mergeStrategy": merge,
			},
		}
	case ShapeExecutorResult:
		out := map[string]any{}
		for _, src := range cfg.DataSources {
			if len(src.DataItems) == 0 {
				continue
			}
			first := src.DataItems[0]
			out[src.SourceID] = map[string]any{
				"type":     string(first.Item.Type),
				"data":     first.Item.Config["data"],
				"metadata": map[string]any{"itemCount": len(src.DataItems)},
			}
		}
		return out
	case ShapeSingleItem:
		if item, ok := firstItem(cfg); ok {
			return map[string]any{"type": string(item.Item.Type), "config": map[string]any(item.Item.Config)}
		}
		return nil
	default:
		if item, ok := firstItem(cfg); ok && item.Item.Type == datasource.ItemStatic {
			return item.Item.Config["data"]
		}
		return nil
	}
}

func firstItem(cfg *datasource.Configuration) (datasource.DataItem, bool) {
	for _, src := range cfg.DataSources {
		if len(src.DataItems) > 0 {
			return src.DataItems[0], true
		}
	}
	return datasource.DataItem{}, false
}

func flatItems(src datasource.SourceEntry, tagSource bool) []any {
	items := make([]any, 0, len(src.DataItems))
	for _, item := range src.DataItems {
		flat := map[string]any{
			"type":       string(item.Item.Type),
			"config":     map[string]any(item.Item.Config),
			"filterPath": item.Processing.Path(),
		}
		if item.Processing.DefaultValue != nil {
			flat["defaultValue"] = item.Processing.DefaultValue
		}
		if tagSource {
			flat["sourceId"] = src.SourceID
		}
		items = append(items, flat)
	}
	return items
}

// ValidateStandardFormat checks that v carries the keys of a canonical
// configuration and returns one message per problem. Item configs are not inspected.
func ValidateStandardFormat(v any) []string {
	if cfg, ok := canonicalValue(v); ok {
		v = cfg
	}
	generic, ok := toGeneric(v)
	if !ok {
		return []string{"configuration is not JSON-serializable"}
	}
	m, ok := generic.(map[string]any)
	if !ok {
		return []string{"configuration must be an object"}
	}

	var errs []string
	if id, _ := m["componentId"].(string); id == "" {
		errs = append(errs, "missing componentId")
	}
	sources, ok := m["dataSources"].([]any)
	if !ok {
		return append(errs, "dataSources must be an array")
	}
	if len(sources) == 0 {
		errs = append(errs, "dataSources is empty")
	}
	for i, s := range sources {
		src, ok := s.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("dataSources[%d] must be an object", i))
			continue
		}
		if id, _ := src["sourceId"].(string); id == "" {
			errs = append(errs, fmt.Sprintf("dataSources[%d] missing sourceId", i))
		}
		items, ok := src["dataItems"].([]any)
		if !ok {
			errs = append(errs, fmt.Sprintf("dataSources[%d].dataItems must be an array", i))
			continue
		}
		for j, it := range items {
			item, _ := it.(map[string]any)
			inner, _ := item["item"].(map[string]any)
			if t, _ := inner["type"].(string); t == "" {
				errs = append(errs, fmt.Sprintf("dataSources[%d].dataItems[%d] missing item.type", i, j))
			}
		}
	}
	return errs
}

// Describe renders cfg for logs and debugging output.
func Describe(cfg *datasource.Configuration) string {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Sprintf("<unencodable configuration: %v>", err)
	}
	return string(raw)
}
