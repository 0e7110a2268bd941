package executor

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/pkg/retry"
)

// HTTPExecutor fetches data through a Transport.
//
// params, headers and pathParams accept either a plain object or a list of
// {key, value, enabled, isDynamic, variableName} entries. Dynamic entries take
// their value from the execution parameters. {{name}} placeholders in the URL
// are filled from path params, then execution parameters.
type HTTPExecutor struct {
	Transport      Transport
	DefaultTimeout time.Duration
}

// NewHTTPExecutor creates an HTTP executor over transport.
func NewHTTPExecutor(transport Transport, defaultTimeout time.Duration) *HTTPExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = 10 * time.Second
	}
	return &HTTPExecutor{Transport: transport, DefaultTimeout: defaultTimeout}
}

func (e *HTTPExecutor) Type() datasource.ItemType { return datasource.ItemHTTP }

// Validate requires a url.
func (e *HTTPExecutor) Validate(cfg datasource.ItemConfig) bool {
	return strings.TrimSpace(cfg.String("url")) != ""
}

// errStatus marks responses with an error status.
type errStatus struct{ code int }

func (e errStatus) Error() string { return fmt.Sprintf("status %d", e.code) }

func (e *HTTPExecutor) Execute(ctx context.Context, in Input) datasource.Result {
	if e.Transport == nil {
		return datasource.Failed(datasource.CodeHTTPInvalidConfig, "no HTTP transport configured")
	}
	req := e.buildRequest(in)

	retries := in.Config.Map("retry")
	policy := retry.FromAttempts(retries.Int("attempts", 0), retries.Millis("delay", 0))
	policy.Retryable = func(err error) bool {
		var st errStatus
		if stderrors.As(err, &st) {
			return st.code >= 500
		}
		return errors.IsTransient(err)
	}

	attempts := 0
	resp, err := retry.DoWithResult(ctx, policy, func() (*Response, error) {
		attempts++
		resp, err := e.Transport.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Status >= 400 {
			return resp, errStatus{code: resp.Status}
		}
		return resp, nil
	})
	if err != nil {
		res := datasource.Failed(datasource.CodeHTTPRequestFailed, "%s %s failed: %v", req.Method, req.URL, err)
		if resp != nil {
			res = res.WithMeta("status", resp.Status)
		}
		return res.WithMeta("attempts", attempts)
	}

	data := ApplyTransform(resp.Data, in.Config.Map("transform"))
	return datasource.Succeeded(data).
		WithMeta("status", resp.Status).
		WithMeta("url", req.URL).
		WithMeta("method", req.Method).
		WithMeta("attempts", attempts)
}

var placeholder = regexp.MustCompile(`\{\{\s*([\w.-]+)\s*\}\}`)

func (e *HTTPExecutor) buildRequest(in Input) Request {
	method := strings.ToUpper(strings.TrimSpace(in.Config.String("method")))
	if method == "" {
		method = http.MethodGet
	}

	pathParams := resolveParams(in.Config["pathParams"], in.Params)
	target := placeholder.ReplaceAllStringFunc(in.Config.String("url"), func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := pathParams[name]; ok {
			return v
		}
		if v, ok := in.Params[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return m
	})

	return Request{
		URL:     target,
		Method:  method,
		Headers: resolveParams(in.Config["headers"], in.Params),
		Params:  resolveParams(in.Config["params"], in.Params),
		Body:    in.Config["body"],
		Timeout: in.Config.Millis("timeout", e.DefaultTimeout),
	}
}

// resolveParams flattens a params value (object or entry list) to strings.
// Disabled entries and dynamic entries without a bound value are skipped.
func resolveParams(v any, exec map[string]any) map[string]string {
	out := map[string]string{}
	switch p := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if p[k] != nil {
				out[k] = fmt.Sprint(p[k])
			}
		}
	case []any:
		for _, raw := range p {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			cfg := datasource.ItemConfig(entry)
			key := cfg.String("key")
			if key == "" || (cfg.Has("enabled") && !cfg.Bool("enabled")) {
				continue
			}
			value := entry["value"]
			if cfg.Bool("isDynamic") {
				bound, ok := exec[cfg.String("variableName")]
				if !ok || bound == nil {
					continue
				}
				value = bound
			}
			if value != nil {
				out[key] = fmt.Sprint(value)
			}
		}
	}
	return out
}
