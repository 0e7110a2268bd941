package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semwidgets/binding"
	"github.com/c360/semwidgets/config"
	"github.com/c360/semwidgets/datasource"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlags(t *testing.T) {
	t.Setenv("SEMWIDGETS_CONFIG", "")

	cfg, err := parseFlags(newFlagSet(), []string{"--config", "a.yaml", "-c", "b.json", "--debug"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.yaml", "b.json"}, cfg.ConfigPaths)
	assert.Equal(t, "debug", cfg.LogLevel, "--debug raises the level")
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestParseFlags_EnvFallback(t *testing.T) {
	t.Setenv("SEMWIDGETS_CONFIG", "env.yaml")
	t.Setenv("SEMWIDGETS_LOG_FORMAT", "text")

	cfg, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"env.yaml"}, cfg.ConfigPaths)
	assert.Equal(t, "text", cfg.LogFormat)

	cfg, err = parseFlags(newFlagSet(), []string{"--config", "flag.yaml"})
	require.NoError(t, err)
	assert.Equal(t, []string{"flag.yaml"}, cfg.ConfigPaths, "flags win over the environment")
}

func TestValidateFlags(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "base.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("flow:\n  workers: 2\n"), 0o600))

	valid := func() *CLIConfig {
		return &CLIConfig{ConfigPaths: []string{existing}, LogLevel: "info", LogFormat: "json", ShutdownTimeout: time.Second}
	}

	tests := []struct {
		name    string
		mutate  func(*CLIConfig)
		wantErr string
	}{
		{name: "valid"},
		{name: "no layers", mutate: func(c *CLIConfig) { c.ConfigPaths = nil }},
		{name: "missing file", mutate: func(c *CLIConfig) { c.ConfigPaths = []string{"/nope.yaml"} }, wantErr: "config file not found"},
		{name: "bad level", mutate: func(c *CLIConfig) { c.LogLevel = "trace" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *CLIConfig) { c.LogFormat = "xml" }, wantErr: "invalid log format"},
		{name: "bad timeout", mutate: func(c *CLIConfig) { c.ShutdownTimeout = 0 }, wantErr: "invalid shutdown timeout"},
		{name: "watch without layers", mutate: func(c *CLIConfig) { c.Watch = true; c.ConfigPaths = nil }, wantErr: "--watch needs"},
		{name: "version skips checks", mutate: func(c *CLIConfig) { c.LogLevel = "trace"; c.ShowVersion = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := validateFlags(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"semwidgets"`)
	assert.Contains(t, out, `"version":"`+Version+`"`)

	buf.Reset()
	setupLogger(&buf, "info", "text").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestRun_VersionAndValidate(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &out))
	assert.Contains(t, out.String(), "semwidgets version "+Version)

	layer := filepath.Join(t.TempDir(), "base.yaml")
	require.NoError(t, os.WriteFile(layer, []byte("gateway:\n  port: 8181\n"), 0o600))
	out.Reset()
	require.NoError(t, run(context.Background(), []string{"--config", layer, "--validate"}, &out))
	assert.Contains(t, out.String(), "Configuration is valid")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("flow:\n  workers: -3\n"), 0o600))
	err := run(context.Background(), []string{"--config", bad, "--validate"}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestBuildApp_SeedsAndExecutesWidgets(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Widgets = []config.WidgetSeed{{
		ID:   "w1",
		Type: "gauge",
		Config: datasource.WidgetConfig{
			Base:       map[string]any{"title": "Boiler"},
			DataSource: map[string]any{"type": "static", "config": map[string]any{"data": 42}},
		},
	}}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, setupLogger(io.Discard, "error", "json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	assert.Nil(t, a.gateway)
	assert.Nil(t, a.metricsServer)
	assert.Nil(t, a.nats)

	regs := a.flow.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "w1", regs[0].ComponentID)

	res, executed := a.flow.ExecuteDataSource(ctx, "w1")
	require.True(t, executed)
	require.True(t, res.Success, res.Error)

	data, ok := a.bridge.GetComponentData("w1")
	require.True(t, ok)
	assert.NotEmpty(t, data)

	stored, err := a.editor.Widget(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "gauge", stored.Type)
}

func TestBuildApp_RejectsInvalidBindingRule(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Binding.Rules = []binding.Rule{{ParamName: "device"}}

	_, err := buildApp(context.Background(), cfg, setupLogger(io.Discard, "error", "json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register binding rules")
}

func TestBuildApp_HealthReport(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = false

	a, err := buildApp(context.Background(), cfg, setupLogger(io.Discard, "error", "json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	require.NotNil(t, a.gateway)

	report := a.health.Report(appName)
	assert.True(t, report.Healthy)
	require.Len(t, report.SubStatuses, 2)
	assert.Equal(t, "flow", report.SubStatuses[0].Component)
	assert.Equal(t, "warehouse", report.SubStatuses[1].Component)
}

func TestBuildApp_RedisStoreSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Gateway.Enabled = false
	cfg.Metrics.Enabled = false
	cfg.Store.Mode = config.StoreRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.Widgets = []config.WidgetSeed{{
		ID:     "w1",
		Type:   "gauge",
		Config: datasource.WidgetConfig{DataSource: map[string]any{"type": "static", "config": map[string]any{"data": 1}}},
	}}
	logger := setupLogger(io.Discard, "error", "json")

	first, err := buildApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	report := first.health.Report(appName)
	assert.True(t, report.Healthy)
	assert.Len(t, report.SubStatuses, 3)
	require.NoError(t, first.Stop(context.Background()))

	cfg.Widgets = nil
	second, err := buildApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Stop(context.Background()) })

	regs := second.flow.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "w1", regs[0].ComponentID)

	mr.Close()
	assert.False(t, second.health.Report(appName).Healthy)
}

func TestApp_ApplyConfigReloadsRules(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Enabled = false
	cfg.Metrics.Enabled = false

	a, err := buildApp(context.Background(), cfg, setupLogger(io.Discard, "error", "json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	require.False(t, a.bindings.ShouldTriggerDataSource("component.color", ""))

	next := cfg.Clone()
	next.Binding.Triggers = []binding.Trigger{{PropertyPath: "component.color", Enabled: true}}
	next.Warehouse.Expiry = config.Duration(time.Minute)
	a.applyConfig(next)

	assert.True(t, a.bindings.ShouldTriggerDataSource("component.color", ""))
	assert.True(t, a.bindings.ShouldTriggerDataSource("base.deviceId", ""))
	assert.Equal(t, time.Minute, a.warehouse.CacheExpiry())

	bad := next.Clone()
	bad.Binding.Rules = []binding.Rule{{PropertyPath: "base.site"}}
	a.applyConfig(bad)
	assert.True(t, a.bindings.ShouldTriggerDataSource("component.color", ""))
}
