package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/semwidgets/errors"
)

// Request is a transport-neutral HTTP request.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Params  map[string]string
	Body    any
	Timeout time.Duration
}

// Response is what a Transport returns. Data is decoded JSON when the body
// parses as JSON and the raw text otherwise.
type Response struct {
	Status  int
	Data    any
	Headers http.Header
}

// Transport performs HTTP requests for the HTTP executor.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (*Response, error)

// Do calls f.
func (f TransportFunc) Do(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport is the net/http backed Transport.
type HTTPTransport struct {
	Client *http.Client
	// BaseURL is prefixed to relative request URLs.
	BaseURL string
	// MaxResponseBytes caps the body read. Zero means 10 MiB.
	MaxResponseBytes int64
}

const defaultMaxResponseBytes = 10 << 20

// Do executes req with net/http.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := t.resolve(req.URL, req.Params)
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPTransport", "Do", "build url")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil && req.Method != http.MethodGet && req.Method != http.MethodHead {
		switch b := req.Body.(type) {
		case string:
			body = strings.NewReader(b)
		case []byte:
			body = bytes.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return nil, errors.WrapInvalid(err, "HTTPTransport", "Do", "encode body")
			}
			body = bytes.NewReader(encoded)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, errors.WrapInvalid(err, "HTTPTransport", "Do", "create request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPTransport", "Do", "send request")
	}
	defer resp.Body.Close()

	limit := t.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, errors.WrapTransient(err, "HTTPTransport", "Do", "read response")
	}

	return &Response{Status: resp.StatusCode, Data: decodeBody(raw), Headers: resp.Header}, nil
}

func (t *HTTPTransport) resolve(raw string, params map[string]string) (string, error) {
	if strings.HasPrefix(raw, "/") && t.BaseURL != "" {
		raw = strings.TrimRight(t.BaseURL, "/") + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute and no base url is configured", raw)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func decodeBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(raw)
	}
	return v
}
