package executor

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/c360/semwidgets/datasource"
)

// JSONExecutor parses config.jsonString.
type JSONExecutor struct{}

func (JSONExecutor) Type() datasource.ItemType { return datasource.ItemJSON }

func (JSONExecutor) Execute(_ context.Context, in Input) datasource.Result {
	raw, isString := in.Config["jsonString"].(string)
	if !isString {
		// Editors sometimes store the already decoded value.
		if v, ok := in.Config["jsonString"]; ok && v != nil {
			return datasource.Succeeded(ApplyTransform(v, in.Config.Map("transform")))
		}
		return datasource.Failed(datasource.CodeJSONNoContent, "json item has no content")
	}
	if strings.TrimSpace(raw) == "" {
		return datasource.Failed(datasource.CodeJSONNoContent, "json item has no content")
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return datasource.Failed(datasource.CodeJSONParseError, "invalid JSON: %v", err)
	}
	return datasource.Succeeded(ApplyTransform(data, in.Config.Map("transform")))
}
