package normalizer

// Shape identifies the structure of a raw data configuration.
type Shape int

// Shapes in detection priority order.
const (
	ShapeCanonical Shape = iota
	ShapeSimpleEditor
	ShapeImportExport
	ShapeExecutorResult
	ShapeSingleItem
	ShapeUnknown
)

func (s Shape) String() string {
	switch s {
	case ShapeCanonical:
		return "canonical"
	case ShapeSimpleEditor:
		return "simple-editor"
	case ShapeImportExport:
		return "import-export"
	case ShapeExecutorResult:
		return "executor-result"
	case ShapeSingleItem:
		return "single-item"
	default:
		return "unknown"
	}
}

// Detect classifies a decoded JSON value. Probes run in a fixed order and the
// first match wins; anything unrecognized is ShapeUnknown.
func Detect(v any) Shape {
	m, ok := v.(map[string]any)
	if !ok {
		return ShapeUnknown
	}
	switch {
	case isCanonical(m):
		return ShapeCanonical
	case isSimpleEditor(m):
		return ShapeSimpleEditor
	case isImportExport(m):
		return ShapeImportExport
	case isExecutorResult(m):
		return ShapeExecutorResult
	case isSingleItem(m):
		return ShapeSingleItem
	}
	return ShapeUnknown
}

func isCanonical(m map[string]any) bool {
	if id, _ := m["componentId"].(string); id == "" {
		return false
	}
	sources, ok := m["dataSources"].([]any)
	if !ok || len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		src, ok := s.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := src["sourceId"].(string); !ok {
			return false
		}
		items, ok := src["dataItems"].([]any)
		if !ok {
			return false
		}
		for _, it := range items {
			item, ok := it.(map[string]any)
			if !ok {
				return false
			}
			if _, ok := item["item"].(map[string]any); !ok {
				return false
			}
			if _, ok := item["processing"].(map[string]any); !ok {
				return false
			}
		}
	}
	return true
}

func isSimpleEditor(m map[string]any) bool {
	sources, ok := m["dataSources"].([]any)
	if !ok || len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		src, ok := s.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := src["dataItems"].([]any); !ok {
			return false
		}
	}
	return true
}

func isImportExport(m map[string]any) bool {
	dsc, ok := m["dataSourceConfig"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = dsc["dataItems"].([]any)
	return ok
}

func isExecutorResult(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for _, v := range m {
		entry, ok := v.(map[string]any)
		if !ok {
			return false
		}
		if _, ok := entry["type"].(string); !ok {
			return false
		}
		if _, ok := entry["data"]; !ok {
			return false
		}
		if meta, ok := entry["metadata"]; ok && meta != nil {
			if _, isMap := meta.(map[string]any); !isMap {
				return false
			}
		}
	}
	return true
}

func isSingleItem(m map[string]any) bool {
	t, ok := m["type"].(string)
	if !ok || t == "" {
		return false
	}
	_, ok = m["config"].(map[string]any)
	return ok
}
