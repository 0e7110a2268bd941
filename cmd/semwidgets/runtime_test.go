package main

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/c360/semwidgets/config"
	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/flow"
)

// RuntimeSuite drives the wired runtime through the editor and observes the
// data updates the gateway would push.
type RuntimeSuite struct {
	suite.Suite

	app *app

	mu      sync.Mutex
	updates map[string][]map[string]any
}

func TestRuntimeSuite(t *testing.T) {
	suite.Run(t, new(RuntimeSuite))
}

func (s *RuntimeSuite) SetupTest() {
	cfg := config.Default()
	cfg.Gateway.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Flow.Debounce = config.Duration(10 * time.Millisecond)
	cfg.Widgets = []config.WidgetSeed{{
		ID:   "w1",
		Type: "gauge",
		Config: datasource.WidgetConfig{
			Base:       map[string]any{"deviceId": "dev-1"},
			Component:  map[string]any{"color": "red"},
			DataSource: map[string]any{"type": "static", "config": map[string]any{"data": 1}},
		},
	}}

	a, err := buildApp(context.Background(), cfg, setupLogger(io.Discard, "error", "json"))
	s.Require().NoError(err)
	s.app = a
	s.updates = make(map[string][]map[string]any)
	a.bridge.OnDataUpdate(func(componentID string, data map[string]any) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.updates[componentID] = append(s.updates[componentID], data)
	})
}

func (s *RuntimeSuite) TearDownTest() {
	s.NoError(s.app.Stop(context.Background()))
}

func (s *RuntimeSuite) updateCount(componentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates[componentID])
}

func (s *RuntimeSuite) latest(componentID string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.updates[componentID]
	if len(list) == 0 {
		return nil
	}
	values := make([]any, 0, len(list[len(list)-1]))
	for _, v := range list[len(list)-1] {
		values = append(values, v)
	}
	return values
}

func (s *RuntimeSuite) TestDataSourceEditReexecutes() {
	ctx := context.Background()
	_, err := s.app.editor.UpdateSection(ctx, "w1", "dataSource",
		map[string]any{"type": "static", "config": map[string]any{"data": "seven"}}, nil)
	s.Require().NoError(err)

	s.Eventually(func() bool { return s.updateCount("w1") == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Contains(s.latest("w1"), "seven")

	s.Eventually(func() bool {
		return s.app.flow.State("w1") == flow.StateRegistered
	}, time.Second, 10*time.Millisecond)
}

func (s *RuntimeSuite) TestNonTriggerEditDoesNotExecute() {
	ctx := context.Background()
	_, err := s.app.editor.UpdateSection(ctx, "w1", "component", map[string]any{"color": "blue"}, nil)
	s.Require().NoError(err)

	s.Never(func() bool { return s.updateCount("w1") > 0 }, 150*time.Millisecond, 10*time.Millisecond)

	stored, err := s.app.editor.Widget(ctx, "w1")
	s.Require().NoError(err)
	s.Equal("blue", stored.Config.Component["color"])
}

func (s *RuntimeSuite) TestSkipExecutionContext() {
	ctx := context.Background()
	_, err := s.app.editor.UpdateSection(ctx, "w1", "base",
		map[string]any{"deviceId": "dev-2"}, map[string]any{"skipExecution": true})
	s.Require().NoError(err)

	s.Never(func() bool { return s.updateCount("w1") > 0 }, 150*time.Millisecond, 10*time.Millisecond)
}

func (s *RuntimeSuite) TestBurstOfEditsCollapses() {
	ctx := context.Background()
	for _, device := range []string{"dev-2", "dev-3", "dev-4"} {
		_, err := s.app.editor.UpdateSection(ctx, "w1", "base", map[string]any{"deviceId": device}, nil)
		s.Require().NoError(err)
	}

	s.Eventually(func() bool { return s.updateCount("w1") >= 1 }, 2*time.Second, 10*time.Millisecond)
	s.Never(func() bool { return s.updateCount("w1") > 1 }, 150*time.Millisecond, 10*time.Millisecond)
}
