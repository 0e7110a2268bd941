package executor

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/c360/semwidgets/datasource"
)

// BindingsExecutor aggregates device property bindings. When several bindings
// are present only the first, in key order, is used.
type BindingsExecutor struct{}

func (BindingsExecutor) Type() datasource.ItemType { return datasource.ItemBindings }

func (BindingsExecutor) Execute(_ context.Context, in Input) datasource.Result {
	bindings := map[string]any(in.Config.Map("dataSourceBindings"))
	if bindings == nil {
		bindings = map[string]any(in.Config)
	}
	if len(bindings) == 0 {
		return datasource.Failed(datasource.CodeBindingsNoData, "no data source bindings")
	}

	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	first, _ := bindings[keys[0]].(map[string]any)
	if raw, ok := first["rawData"]; ok && raw != nil {
		return datasource.Succeeded(decodeRaw(raw)).WithMeta("bindingKey", keys[0])
	}
	if result, ok := first["finalResult"]; ok && result != nil {
		return datasource.Succeeded(result).WithMeta("bindingKey", keys[0])
	}
	return datasource.Succeeded(bindings)
}

// decodeRaw parses JSON text, falling back to the raw string.
func decodeRaw(raw any) any {
	s, ok := raw.(string)
	if !ok {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
