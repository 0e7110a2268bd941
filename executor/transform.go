package executor

import (
	"reflect"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/pkg/pathutil"
)

// ApplyTransform applies an item's transform block to data in the fixed order
// path, mapping, filter. A missing path segment yields nil.
//
//	path:    dotted path to extract
//	mapping: {"oldField": "newField"} renames fields of an object or of every object in an array
//	filter:  {"field": value} keeps array elements whose fields equal every given value
func ApplyTransform(data any, transform datasource.ItemConfig) any {
	if len(transform) == 0 {
		return data
	}
	if p := transform.String("path"); p != "" {
		data = pathutil.Lookup(data, p)
	}
	if mapping := transform.Map("mapping"); len(mapping) > 0 {
		data = applyMapping(data, mapping)
	}
	if filter := transform.Map("filter"); len(filter) > 0 {
		data = applyFilter(data, filter)
	}
	return data
}

func applyMapping(data any, mapping datasource.ItemConfig) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if renamed := mapping.String(k); renamed != "" {
				out[renamed] = val
				continue
			}
			if _, taken := out[k]; !taken {
				out[k] = val
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = applyMapping(el, mapping)
		}
		return out
	}
	return data
}

func applyFilter(data any, filter datasource.ItemConfig) any {
	list, ok := data.([]any)
	if !ok {
		return data
	}
	out := make([]any, 0, len(list))
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		keep := true
		for field, want := range filter {
			if !looseEqual(obj[field], want) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, el)
		}
	}
	return out
}

// looseEqual compares decoded JSON values, treating every numeric type alike.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
