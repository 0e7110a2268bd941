package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/c360/semwidgets/binding"
	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
)

// Store modes.
const (
	StoreMemory = "memory"
	StoreKV     = "kv"
	StoreRedis  = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Version   string          `json:"version,omitempty"`
	Warehouse WarehouseConfig `json:"warehouse"`
	Flow      FlowConfig      `json:"flow"`
	HTTP      HTTPConfig      `json:"http"`
	Files     FilesConfig     `json:"files"`
	Gateway   GatewayConfig   `json:"gateway"`
	Metrics   MetricsConfig   `json:"metrics"`
	NATS      NATSConfig      `json:"nats"`
	Redis     RedisConfig     `json:"redis"`
	Store     StoreConfig     `json:"store"`
	Binding   BindingConfig   `json:"binding"`
	Widgets   []WidgetSeed    `json:"widgets,omitempty"`
}

// WarehouseConfig configures the component data cache.
type WarehouseConfig struct {
	Expiry          Duration `json:"expiry"`
	CleanupInterval Duration `json:"cleanup_interval"`
}

// FlowConfig configures change propagation.
type FlowConfig struct {
	Debounce  Duration `json:"debounce"`
	Workers   int      `json:"workers"`
	QueueSize int      `json:"queue_size"`
}

// HTTPConfig configures the transport used by http data items.
type HTTPConfig struct {
	BaseURL          string   `json:"base_url,omitempty"`
	Timeout          Duration `json:"timeout"`
	MaxResponseBytes int64    `json:"max_response_bytes,omitempty"`
}

// FilesConfig configures the file executor.
type FilesConfig struct {
	// BaseDir confines file items; empty disables file reads.
	BaseDir string `json:"base_dir,omitempty"`
}

// GatewayConfig configures the HTTP and websocket gateway.
type GatewayConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	EnableCORS     bool     `json:"enable_cors"`
	CORSOrigins    []string `json:"cors_origins,omitempty"`
	MaxRequestSize int64    `json:"max_request_size,omitempty"`
	ExecuteTimeout Duration `json:"execute_timeout"`
	ExecuteRate    float64  `json:"execute_rate,omitempty"`
	ExecuteBurst   int      `json:"execute_burst,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// NATSConfig configures the optional NATS connection used for the event
// relay and the KV widget store.
type NATSConfig struct {
	Enabled       bool     `json:"enabled"`
	URL           string   `json:"url"`
	SubjectPrefix string   `json:"subject_prefix"`
	KVBucket      string   `json:"kv_bucket"`
	MaxReconnects int      `json:"max_reconnects"`
	ReconnectWait Duration `json:"reconnect_wait"`
	Username      string   `json:"username,omitempty"`
	Password      string   `json:"password,omitempty"`
	Token         string   `json:"token,omitempty"`
}

// RedisConfig configures the Redis widget store.
type RedisConfig struct {
	Addr      string `json:"addr"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix"`
}

// StoreConfig selects the widget configuration store.
type StoreConfig struct {
	Mode string `json:"mode"`
}

// BindingConfig adds binding and trigger rules on top of the defaults.
type BindingConfig struct {
	DisableDefaults bool                               `json:"disable_defaults,omitempty"`
	Rules           []binding.Rule                     `json:"rules,omitempty"`
	Triggers        []binding.Trigger                  `json:"triggers,omitempty"`
	ComponentTypes  map[string]binding.ComponentConfig `json:"component_types,omitempty"`
}

// WidgetSeed is a widget stored and registered at startup.
type WidgetSeed struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Config     datasource.WidgetConfig `json:"config"`
	Properties map[string]any          `json:"properties,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Warehouse: WarehouseConfig{
			Expiry:          Duration(5 * time.Minute),
			CleanupInterval: Duration(time.Minute),
		},
		Flow: FlowConfig{
			Debounce:  Duration(100 * time.Millisecond),
			Workers:   4,
			QueueSize: 256,
		},
		HTTP: HTTPConfig{
			Timeout: Duration(10 * time.Second),
		},
		Gateway: GatewayConfig{
			Enabled:        true,
			Port:           8080,
			MaxRequestSize: 1024 * 1024,
			ExecuteTimeout: Duration(30 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "semwidgets.events",
			KVBucket:      "semwidgets_widgets",
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "semwidgets:widgets",
		},
		Store: StoreConfig{Mode: StoreMemory},
	}
}

// Validate reports the first invalid value as a classified invalid error.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", fmt.Sprintf(format, args...))
	}

	if c.Warehouse.Expiry.D() <= 0 {
		return invalid("warehouse.expiry must be positive")
	}
	if c.Warehouse.CleanupInterval.D() < 0 {
		return invalid("warehouse.cleanup_interval cannot be negative")
	}
	if c.Flow.Debounce.D() <= 0 {
		return invalid("flow.debounce must be positive")
	}
	if c.Flow.Workers < 0 || c.Flow.QueueSize < 0 {
		return invalid("flow.workers and flow.queue_size cannot be negative")
	}
	if c.HTTP.Timeout.D() < 0 {
		return invalid("http.timeout cannot be negative")
	}
	if c.HTTP.BaseURL != "" {
		if u, err := url.Parse(c.HTTP.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("http.base_url %q is not an absolute URL", c.HTTP.BaseURL)
		}
	}
	if c.HTTP.MaxResponseBytes < 0 {
		return invalid("http.max_response_bytes cannot be negative")
	}
	if c.Gateway.Enabled {
		if err := validPort("gateway.port", c.Gateway.Port); err != nil {
			return err
		}
		if c.Gateway.EnableCORS && len(c.Gateway.CORSOrigins) == 0 {
			return invalid("gateway.enable_cors requires explicit cors_origins")
		}
		if c.Gateway.ExecuteRate < 0 || c.Gateway.ExecuteBurst < 0 {
			return invalid("gateway.execute_rate and gateway.execute_burst cannot be negative")
		}
	}
	if c.Metrics.Enabled {
		if err := validPort("metrics.port", c.Metrics.Port); err != nil {
			return err
		}
		if c.Gateway.Enabled && c.Gateway.Port == c.Metrics.Port {
			return invalid("gateway.port and metrics.port must differ")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics.path must start with /")
		}
	}

	switch c.Store.Mode {
	case StoreMemory:
	case StoreKV:
		if !c.NATS.Enabled {
			return invalid("store.mode %q requires nats.enabled", StoreKV)
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return invalid("redis.addr is required for the redis store")
		}
		if c.Redis.DB < 0 {
			return invalid("redis.db cannot be negative")
		}
	default:
		return invalid("store.mode must be %q, %q or %q, got %q", StoreMemory, StoreKV, StoreRedis, c.Store.Mode)
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return invalid("nats.url is required when nats is enabled")
		}
		if !isValidSubject(c.NATS.SubjectPrefix) {
			return invalid("nats.subject_prefix %q is not a valid subject", c.NATS.SubjectPrefix)
		}
		if c.Store.Mode == StoreKV && c.NATS.KVBucket == "" {
			return invalid("nats.kv_bucket is required for the kv store")
		}
	}

	seen := make(map[string]bool, len(c.Widgets))
	for i, w := range c.Widgets {
		if w.ID == "" {
			return invalid("widgets[%d].id is required", i)
		}
		if seen[w.ID] {
			return invalid("widgets[%d].id %q is duplicated", i, w.ID)
		}
		seen[w.ID] = true
	}
	for i, r := range c.Binding.Rules {
		if r.PropertyPath == "" || r.ParamName == "" {
			return invalid("binding.rules[%d] needs propertyPath and paramName", i)
		}
	}
	for i, t := range c.Binding.Triggers {
		if t.PropertyPath == "" {
			return invalid("binding.triggers[%d] needs propertyPath", i)
		}
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("%s %d out of range", name, port))
	}
	return nil
}

// isValidSubject reports whether s is a dot separated subject without
// wildcards or empty tokens.
func isValidSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" || strings.ContainsAny(part, " *>\t") {
			return false
		}
	}
	return true
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// String returns the configuration as indented JSON with secrets masked.
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token, &masked.Redis.Password} {
		if *s != "" {
			*s = "***"
		}
	}
	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
