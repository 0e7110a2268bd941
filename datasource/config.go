package datasource

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ItemConfig is the type-specific configuration of a data item as decoded from JSON.
type ItemConfig map[string]any

// Has reports whether key is present.
func (c ItemConfig) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// String returns the value of key as a string, or "" if absent or not a string.
func (c ItemConfig) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// Bool returns the value of key as a bool. String values "true"/"1" count as true.
func (c ItemConfig) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

// Int returns the value of key as an int, or def when absent or not numeric.
func (c ItemConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Millis returns the value of key, interpreted as milliseconds, as a duration.
func (c ItemConfig) Millis(key string, def time.Duration) time.Duration {
	n := c.Int(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

// Map returns the value of key as a nested config, or nil.
func (c ItemConfig) Map(key string) ItemConfig {
	switch v := c[key].(type) {
	case map[string]any:
		return ItemConfig(v)
	case ItemConfig:
		return v
	}
	return nil
}

// Slice returns the value of key as a slice, or nil.
func (c ItemConfig) Slice(key string) []any {
	s, _ := c[key].([]any)
	return s
}

// Section names of a widget configuration.
const (
	SectionBase        = "base"
	SectionComponent   = "component"
	SectionDataSource  = "dataSource"
	SectionInteraction = "interaction"
)

// Sections lists the widget configuration sections in canonical order.
var Sections = []string{SectionBase, SectionComponent, SectionDataSource, SectionInteraction}

// WidgetConfig is the full configuration of one widget as held by the external
// configuration store.
type WidgetConfig struct {
	Base        map[string]any `json:"base,omitempty" yaml:"base,omitempty"`
	Component   map[string]any `json:"component,omitempty" yaml:"component,omitempty"`
	DataSource  map[string]any `json:"dataSource,omitempty" yaml:"dataSource,omitempty"`
	Interaction map[string]any `json:"interaction,omitempty" yaml:"interaction,omitempty"`
}

// Section returns the named section, or nil for unknown names.
func (w *WidgetConfig) Section(name string) map[string]any {
	if w == nil {
		return nil
	}
	switch name {
	case SectionBase:
		return w.Base
	case SectionComponent:
		return w.Component
	case SectionDataSource:
		return w.DataSource
	case SectionInteraction:
		return w.Interaction
	}
	return nil
}

// SetSection replaces the named section and reports whether the name was known.
func (w *WidgetConfig) SetSection(name string, value map[string]any) bool {
	switch name {
	case SectionBase:
		w.Base = value
	case SectionComponent:
		w.Component = value
	case SectionDataSource:
		w.DataSource = value
	case SectionInteraction:
		w.Interaction = value
	default:
		return false
	}
	return true
}

// AsMap exposes the sections as one map keyed by section name, omitting nil sections.
func (w *WidgetConfig) AsMap() map[string]any {
	out := make(map[string]any, len(Sections))
	for _, name := range Sections {
		if s := w.Section(name); s != nil {
			out[name] = s
		}
	}
	return out
}

// ValidSection reports whether name is a widget configuration section.
func ValidSection(name string) bool {
	for _, s := range Sections {
		if s == name {
			return true
		}
	}
	return false
}
