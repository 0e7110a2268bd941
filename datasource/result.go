package datasource

import (
	"fmt"

	"github.com/c360/semwidgets/pkg/timestamp"
)

// ErrorCode tags a failed execution result.
type ErrorCode string

const (
	CodeHTTPRequestFailed   ErrorCode = "HTTP_REQUEST_FAILED"
	CodeHTTPInvalidConfig   ErrorCode = "HTTP_INVALID_CONFIG"
	CodeJSONParseError      ErrorCode = "JSON_PARSE_ERROR"
	CodeJSONNoContent       ErrorCode = "JSON_NO_CONTENT"
	CodeStaticNoData        ErrorCode = "STATIC_NO_DATA"
	CodeScriptError         ErrorCode = "SCRIPT_ERROR"
	CodeFileReadError       ErrorCode = "FILE_READ_ERROR"
	CodeFileInvalidPath     ErrorCode = "FILE_INVALID_PATH"
	CodeWebSocketInvalidURL ErrorCode = "WEBSOCKET_INVALID_URL"
	CodeBindingsNoData      ErrorCode = "BINDINGS_NO_DATA"
	CodeExecutorNotFound    ErrorCode = "EXECUTOR_NOT_FOUND"
	CodeExecutorPanic       ErrorCode = "EXECUTOR_PANIC"
	CodeTransformError      ErrorCode = "TRANSFORM_ERROR"
	CodeInvalidConfig       ErrorCode = "INVALID_CONFIG"
)

// Result is the outcome of executing one data item. A failed result carries no
// data; a successful one carries no error.
type Result struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode ErrorCode      `json:"errorCode,omitempty"`
	Timestamp int64          `json:"timestamp"`
	SourceID  string         `json:"sourceId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(data any) Result {
	return Result{Success: true, Data: data, Timestamp: timestamp.Now()}
}

// Failed builds a failed result.
func Failed(code ErrorCode, format string, args ...any) Result {
	return Result{
		Success:   false,
		Error:     fmt.Sprintf(format, args...),
		ErrorCode: code,
		Timestamp: timestamp.Now(),
	}
}

// WithMeta returns r with key set in its metadata.
func (r Result) WithMeta(key string, value any) Result {
	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[key] = value
	r.Metadata = meta
	return r
}
