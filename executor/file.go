package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/semwidgets/datasource"
)

const maxFileSize = 10 << 20

// FileExecutor reads data files confined to BaseDir. Content is decoded by
// config.format, or by extension (.json, .yaml, .yml); anything else is text.
type FileExecutor struct {
	BaseDir string
}

func (e *FileExecutor) Type() datasource.ItemType { return datasource.ItemFile }

func (e *FileExecutor) Execute(_ context.Context, in Input) datasource.Result {
	full, ok := e.resolve(in.Config.String("path"))
	if !ok {
		return datasource.Failed(datasource.CodeFileInvalidPath, "path %q is outside the data directory", in.Config.String("path"))
	}

	info, err := os.Stat(full)
	if err != nil {
		return datasource.Failed(datasource.CodeFileReadError, "cannot stat file: %v", err)
	}
	if !info.Mode().IsRegular() {
		return datasource.Failed(datasource.CodeFileInvalidPath, "not a regular file: %s", in.Config.String("path"))
	}
	if info.Size() > maxFileSize {
		return datasource.Failed(datasource.CodeFileReadError, "file too large: %d bytes > %d", info.Size(), maxFileSize)
	}

	raw, err := os.ReadFile(full)
	if err != nil {
		return datasource.Failed(datasource.CodeFileReadError, "cannot read file: %v", err)
	}

	format := strings.ToLower(in.Config.String("format"))
	if format == "" {
		switch strings.ToLower(filepath.Ext(full)) {
		case ".json":
			format = "json"
		case ".yaml", ".yml":
			format = "yaml"
		}
	}

	var data any
	switch format {
	case "json":
		if err := json.Unmarshal(raw, &data); err != nil {
			return datasource.Failed(datasource.CodeJSONParseError, "invalid JSON in %s: %v", in.Config.String("path"), err)
		}
	case "yaml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return datasource.Failed(datasource.CodeFileReadError, "invalid YAML in %s: %v", in.Config.String("path"), err)
		}
		data = plainYAML(data)
	default:
		data = string(raw)
	}

	return datasource.Succeeded(ApplyTransform(data, in.Config.Map("transform"))).
		WithMeta("path", in.Config.String("path")).
		WithMeta("bytes", len(raw))
}

// resolve joins rel onto BaseDir and rejects results that escape it.
func (e *FileExecutor) resolve(rel string) (string, bool) {
	if rel == "" || e.BaseDir == "" {
		return "", false
	}
	base, err := filepath.Abs(e.BaseDir)
	if err != nil {
		return "", false
	}
	full := filepath.Clean(filepath.Join(base, rel))
	if filepath.IsAbs(rel) {
		full = filepath.Clean(rel)
	}
	inside, err := filepath.Rel(base, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", false
	}
	if resolved, err := filepath.EvalSymlinks(full); err == nil {
		baseResolved, err := filepath.EvalSymlinks(base)
		if err != nil {
			return "", false
		}
		inside, err = filepath.Rel(baseResolved, resolved)
		if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
			return "", false
		}
	}
	return full, true
}

// plainYAML converts map[any]any nodes to map[string]any so YAML and JSON
// content share one representation.
func plainYAML(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, val := range node {
			node[k] = plainYAML(val)
		}
		return node
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[stringKey(k)] = plainYAML(val)
		}
		return out
	case []any:
		for i, val := range node {
			node[i] = plainYAML(val)
		}
		return node
	}
	return v
}

func stringKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	raw, err := json.Marshal(k)
	if err != nil {
		return ""
	}
	return strings.Trim(string(raw), `"`)
}
