package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/bridge"
	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/eventbus"
	"github.com/c360/semwidgets/health"
	"github.com/c360/semwidgets/metric"
	"github.com/c360/semwidgets/widgetstore"
)

type fakeData struct {
	mu   sync.Mutex
	data map[string]map[string]any
	subs map[int]bridge.UpdateFunc
	next int
}

func newFakeData() *fakeData {
	return &fakeData{data: map[string]map[string]any{}, subs: map[int]bridge.UpdateFunc{}}
}

func (f *fakeData) GetComponentData(id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.data[id]
	return d, ok
}

func (f *fakeData) OnDataUpdate(fn bridge.UpdateFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeData) publish(id string, data map[string]any) {
	f.mu.Lock()
	f.data[id] = data
	subs := make([]bridge.UpdateFunc, 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(id, data)
	}
}

func (f *fakeData) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type fakeRunner struct {
	busy map[string]bool
}

func (r *fakeRunner) ExecuteDataSource(_ context.Context, id string) (bridge.DataResult, bool) {
	switch {
	case id == "missing":
		return bridge.DataResult{ComponentID: id, Error: "component not registered",
			ErrorCode: datasource.CodeInvalidConfig}, false
	case r.busy[id]:
		return bridge.DataResult{ComponentID: id}, false
	}
	return bridge.DataResult{Success: true, ComponentID: id,
		Data: map[string]any{"source_0": 42.0}}, true
}

type fixture struct {
	server *Server
	http   *httptest.Server
	data   *fakeData
	editor *widgetstore.Editor
	events chan eventbus.Event
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	bus, err := eventbus.New(nil)
	require.NoError(t, err)
	events := make(chan eventbus.Event, 16)
	bus.OnConfigChange(eventbus.TypeConfigChanged, func(_ context.Context, ev eventbus.Event) error {
		events <- ev
		return nil
	})

	editor, err := widgetstore.NewEditor(widgetstore.NewMemoryStore(), bus, nil)
	require.NoError(t, err)
	require.NoError(t, editor.Save(context.Background(), &widgetstore.Widget{
		ID: "g1", Type: "gauge",
		Config: datasource.WidgetConfig{Base: map[string]any{"deviceId": "dev-1"}},
	}))

	data := newFakeData()
	s, err := New(cfg, data, metric.NewMetricsRegistry(),
		WithRunner(&fakeRunner{busy: map[string]bool{"busy": true}}),
		WithEditor(editor),
		WithStats("warehouse", func() any { return map[string]int{"components": 1} }),
	)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Stop(context.Background())
	})
	return &fixture{server: s, http: ts, data: data, editor: editor, events: events}
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestGetData(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	resp, err := http.Get(f.http.URL + "/api/v1/components/g1/data")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	resp.Body.Close()

	f.data.publish("g1", map[string]any{"source_0": 21.5})

	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/api/v1/components/g1/data", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))
	body := decode(t, resp)
	assert.Equal(t, "g1", body["componentId"])
	assert.Equal(t, 21.5, body["data"].(map[string]any)["source_0"])
}

func TestExecute(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	tests := []struct {
		id   string
		code int
	}{
		{"g1", http.StatusOK},
		{"missing", http.StatusNotFound},
		{"busy", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			resp, err := http.Post(f.http.URL+"/api/v1/components/"+tt.id+"/execute", "application/json", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
			body := decode(t, resp)
			if tt.code == http.StatusOK {
				assert.Equal(t, true, body["success"])
			} else {
				assert.NotEmpty(t, body["error"])
			}
		})
	}

	resp, err := http.Get(f.http.URL + "/api/v1/components/g1/execute")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExecute_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExecuteRate = 0.001
	cfg.ExecuteBurst = 2
	f := newFixture(t, cfg)

	codes := make([]int, 0, 3)
	var last *http.Response
	for i := 0; i < 3; i++ {
		resp, err := http.Post(f.http.URL+"/api/v1/components/g1/execute", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
		last = resp
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1", last.Header.Get("Retry-After"))

	bad := Config{ExecuteRate: -1}
	assert.Error(t, bad.Validate())
}

func put(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	base := f.http.URL + "/api/v1/components/"

	resp := put(t, base+"g1/config/base", `{"deviceId":"dev-2"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, 2.0, body["version"])

	select {
	case ev := <-f.events:
		assert.Equal(t, "dev-2", ev.NewConfig["deviceId"])
		assert.False(t, ev.SkipExecution())
	case <-time.After(time.Second):
		t.Fatal("config-changed not emitted")
	}

	resp = put(t, base+"g1/config/component?skipExecution=true", `{"color":"red"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	ev := <-f.events
	assert.True(t, ev.SkipExecution())

	tests := []struct {
		name string
		url  string
		body string
		code int
	}{
		{"unknown component", base + "nope/config/base", `{}`, http.StatusNotFound},
		{"unknown section", base + "g1/config/layout", `{}`, http.StatusBadRequest},
		{"not an object", base + "g1/config/base", `[1,2]`, http.StatusBadRequest},
		{"too large", base + "g1/config/base", `{"x":"` + strings.Repeat("a", 200) + `"}`, http.StatusRequestEntityTooLarge},
	}
	f.server.config.MaxRequestSize = 100
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := put(t, tt.url, tt.body)
			defer resp.Body.Close()
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	resp, err := http.Get(f.http.URL + "/api/v1/stats")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Contains(t, body, "warehouse")
	assert.Contains(t, body, "websocket")
}

func dial(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return f.server.hub.count() > 0 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebsocketPush(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := dial(t, f)

	f.data.publish("g1", map[string]any{"source_0": 1.0})
	msg := readMessage(t, conn)
	assert.Equal(t, MessageDataUpdate, msg.Type)
	assert.Equal(t, "g1", msg.ComponentID)
	assert.Equal(t, 1.0, msg.Data["source_0"])
	assert.NotEmpty(t, msg.ID)
}

func TestWebsocketSubscribeFilter(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := dial(t, f)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": MessageSubscribe, "componentIds": []string{"g2"}}))
	require.Eventually(t, func() bool {
		f.server.hub.mu.RLock()
		defer f.server.hub.mu.RUnlock()
		for c := range f.server.hub.clients {
			return !c.wants("g1")
		}
		return false
	}, time.Second, 5*time.Millisecond)

	f.data.publish("g1", map[string]any{"v": 1.0})
	f.data.publish("g2", map[string]any{"v": 2.0})
	msg := readMessage(t, conn)
	assert.Equal(t, "g2", msg.ComponentID)
}

func TestStopDetaches(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	conn := dial(t, f)
	require.Equal(t, 1, f.data.subscribers())

	require.NoError(t, f.server.Stop(context.Background()))
	assert.Zero(t, f.data.subscribers())
	assert.Zero(t, f.server.hub.count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestCORS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCORS = true
	cfg.CORSOrigins = []string{"https://ui.example.com"}
	f := newFixture(t, cfg)

	req, err := http.NewRequest(http.MethodOptions, f.http.URL+"/api/v1/stats", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ui.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ui.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(1024*1024), cfg.MaxRequestSize)

	bad := Config{EnableCORS: true}
	assert.Error(t, bad.Validate())
	bad = Config{MaxRequestSize: -1}
	assert.Error(t, bad.Validate())

	_, err := New(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	plain, err := New(DefaultConfig(), newFakeData(), nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	plain.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	monitor := health.NewMonitor()
	monitor.Update("nats", health.Healthy("nats", "connected"))
	s, err := New(DefaultConfig(), newFakeData(), nil, WithHealth(monitor))
	require.NoError(t, err)

	get := func() (int, health.Status) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var report health.Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		return rec.Code, report
	}

	code, report := get()
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, report.Healthy)
	require.Len(t, report.SubStatuses, 1)

	monitor.Update("nats", health.Degraded("nats", "reconnecting"))
	code, report = get()
	assert.Equal(t, http.StatusOK, code, "degraded still serves")
	assert.Equal(t, health.StateDegraded, report.State)

	monitor.Update("nats", health.Unhealthy("nats", "disconnected"))
	code, _ = get()
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
