package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
)

func TestHTTPExecutor_Transport(t *testing.T) {
	var got *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{
				map[string]any{"id": "d1", "temp": 20},
				map[string]any{"id": "d2", "temp": 30},
			},
		})
	}))
	defer server.Close()

	e := NewHTTPExecutor(&HTTPTransport{BaseURL: server.URL}, time.Second)

	res := e.Execute(context.Background(), Input{
		Config: datasource.ItemConfig{
			"url":    "/api/devices/{{deviceId}}/telemetry",
			"method": "get",
			"params": []any{
				map[string]any{"key": "metrics", "isDynamic": true, "variableName": "metricsList"},
				map[string]any{"key": "limit", "value": 10},
				map[string]any{"key": "debug", "value": "1", "enabled": false},
			},
			"headers": map[string]any{"X-Tenant": "acme"},
			"transform": map[string]any{
				"path":    "data",
				"mapping": map[string]any{"temp": "temperature"},
				"filter":  map[string]any{"id": "d2"},
			},
		},
		Params: map[string]any{"deviceId": "dev-7", "metricsList": "temp"},
	})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []any{map[string]any{"id": "d2", "temperature": float64(30)}}, res.Data)
	assert.Equal(t, http.StatusOK, res.Metadata["status"])

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/api/devices/dev-7/telemetry", got.URL.Path)
	assert.Equal(t, "temp", got.URL.Query().Get("metrics"))
	assert.Equal(t, "10", got.URL.Query().Get("limit"))
	assert.Empty(t, got.URL.Query().Get("debug"))
	assert.Equal(t, "acme", got.Header.Get("X-Tenant"))
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	e := NewHTTPExecutor(&HTTPTransport{}, time.Second)
	res := e.Execute(context.Background(), Input{Config: datasource.ItemConfig{"url": server.URL + "/missing"}})

	assert.False(t, res.Success)
	assert.Equal(t, datasource.CodeHTTPRequestFailed, res.ErrorCode)
	assert.Equal(t, http.StatusNotFound, res.Metadata["status"])
	assert.Nil(t, res.Data)
}

func TestHTTPExecutor_BadURLNeverPanics(t *testing.T) {
	e := NewHTTPExecutor(&HTTPTransport{}, time.Second)

	res := e.Execute(context.Background(), Input{Config: datasource.ItemConfig{"url": "not a url"}})

	assert.False(t, res.Success)
	assert.Equal(t, datasource.CodeHTTPRequestFailed, res.ErrorCode)
}

func TestHTTPExecutor_NoTransport(t *testing.T) {
	e := NewHTTPExecutor(nil, 0)
	res := e.Execute(context.Background(), Input{Config: datasource.ItemConfig{"url": "/a"}})
	assert.Equal(t, datasource.CodeHTTPInvalidConfig, res.ErrorCode)
}

func TestHTTPExecutor_RetryOnlyWhenConfigured(t *testing.T) {
	var calls atomic.Int32
	transport := TransportFunc(func(context.Context, Request) (*Response, error) {
		if calls.Add(1) < 3 {
			return &Response{Status: http.StatusServiceUnavailable}, nil
		}
		return &Response{Status: http.StatusOK, Data: "ok"}, nil
	})
	e := NewHTTPExecutor(transport, time.Second)

	res := e.Execute(context.Background(), Input{Config: datasource.ItemConfig{"url": "/a"}})
	assert.False(t, res.Success)
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	res = e.Execute(context.Background(), Input{Config: datasource.ItemConfig{
		"url":   "/a",
		"retry": map[string]any{"attempts": 3, "delay": 1},
	}})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "ok", res.Data)
	assert.Equal(t, 3, res.Metadata["attempts"])
}

func TestHTTPExecutor_NoRetryOnClientErrors(t *testing.T) {
	var calls atomic.Int32
	transport := TransportFunc(func(context.Context, Request) (*Response, error) {
		calls.Add(1)
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "test", "Do", "reject")
	})
	e := NewHTTPExecutor(transport, time.Second)

	res := e.Execute(context.Background(), Input{Config: datasource.ItemConfig{
		"url":   "/a",
		"retry": map[string]any{"attempts": 5, "delay": 1},
	}})
	assert.False(t, res.Success)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPExecutor_SendsBody(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte("plain text"))
	}))
	defer server.Close()

	e := NewHTTPExecutor(&HTTPTransport{BaseURL: server.URL}, time.Second)
	res := e.Execute(context.Background(), Input{Config: datasource.ItemConfig{
		"url":    "/ingest",
		"method": "POST",
		"body":   map[string]any{"deviceId": "d1"},
	}})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "plain text", res.Data)
	assert.Equal(t, map[string]any{"deviceId": "d1"}, body)
}
