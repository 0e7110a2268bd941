// Package binding holds the declarative rules that map component property
// paths to execution parameters (bindings) and the whitelist of property paths
// whose changes re-run a component's data sources (triggers).
//
// Rules are registered globally and may be extended per component type. The
// defaults are ordinary rules: Reset removes them and nothing else is built in.
package binding

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/pkg/pathutil"
)

// Transform reshapes a bound value before it becomes a parameter.
type Transform func(any) any

// Rule maps a property path of the component configuration to a parameter name.
type Rule struct {
	PropertyPath string    `json:"propertyPath"`
	ParamName    string    `json:"paramName"`
	Transform    Transform `json:"-"`
	Required     bool      `json:"required,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// Trigger marks a property path whose changes re-run the data sources.
type Trigger struct {
	PropertyPath string `json:"propertyPath"`
	Enabled      bool   `json:"enabled"`
	DebounceMs   int    `json:"debounceMs,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ComponentConfig adds rules for one component type on top of the global ones.
type ComponentConfig struct {
	Bindings []Rule    `json:"bindings,omitempty"`
	Triggers []Trigger `json:"triggers,omitempty"`
}

// Snapshot is a copy of the registry contents for debugging.
type Snapshot struct {
	Bindings   []Rule                     `json:"bindings"`
	Triggers   []Trigger                  `json:"triggers"`
	Components map[string]ComponentConfig `json:"components"`
}

// DefaultRules are registered by NewRegistry.
func DefaultRules() []Rule {
	return []Rule{
		{PropertyPath: "base.deviceId", ParamName: "deviceId", Description: "device bound in the base section"},
		{PropertyPath: "base.metricsList", ParamName: "metricsList", Description: "metrics selected in the base section"},
	}
}

// DefaultTriggers are registered by NewRegistry.
func DefaultTriggers() []Trigger {
	return []Trigger{
		{PropertyPath: "base.deviceId", Enabled: true, Description: "device change"},
		{PropertyPath: "base.metricsList", Enabled: true, Description: "metrics selection change"},
		{PropertyPath: "dataSource", Enabled: true, Description: "any data source edit"},
	}
}

// Registry is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	bindings   []Rule
	triggers   []Trigger
	components map[string]ComponentConfig
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithoutDefaults starts the registry empty.
func WithoutDefaults() Option {
	return func(r *Registry) {
		r.bindings = nil
		r.triggers = nil
	}
}

// NewRegistry creates a registry holding DefaultRules and DefaultTriggers.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		bindings:   DefaultRules(),
		triggers:   DefaultTriggers(),
		components: make(map[string]ComponentConfig),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterBindingRule adds rule, replacing any rule with the same property path.
func (r *Registry) RegisterBindingRule(rule Rule) error {
	if rule.PropertyPath == "" || rule.ParamName == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "binding", "RegisterBindingRule",
			"propertyPath and paramName are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = upsertRule(r.bindings, rule)
	return nil
}

// RemoveBindingRule removes the rule for propertyPath and reports whether one existed.
func (r *Registry) RemoveBindingRule(propertyPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, b := range r.bindings {
		if b.PropertyPath == propertyPath {
			r.bindings = append(r.bindings[:i], r.bindings[i+1:]...)
			return true
		}
	}
	return false
}

// RegisterTriggerRule adds trigger, replacing any trigger with the same property path.
func (r *Registry) RegisterTriggerRule(trigger Trigger) error {
	if trigger.PropertyPath == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "binding", "RegisterTriggerRule",
			"propertyPath is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = upsertTrigger(r.triggers, trigger)
	return nil
}

// RemoveTriggerRule removes the trigger for propertyPath and reports whether one existed.
func (r *Registry) RemoveTriggerRule(propertyPath string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.triggers {
		if t.PropertyPath == propertyPath {
			r.triggers = append(r.triggers[:i], r.triggers[i+1:]...)
			return true
		}
	}
	return false
}

// SetComponentConfig replaces the additional rules of componentType.
func (r *Registry) SetComponentConfig(componentType string, cfg ComponentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[componentType] = ComponentConfig{
		Bindings: append([]Rule(nil), cfg.Bindings...),
		Triggers: append([]Trigger(nil), cfg.Triggers...),
	}
}

// RemoveComponentConfig drops the additional rules of componentType.
func (r *Registry) RemoveComponentConfig(componentType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.components, componentType)
}

// Reset removes every rule, trigger and component config, defaults included.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = nil
	r.triggers = nil
	r.components = make(map[string]ComponentConfig)
}

// RuleSet is the complete contents of a Registry.
type RuleSet struct {
	Rules      []Rule
	Triggers   []Trigger
	Components map[string]ComponentConfig
}

// Replace swaps the registry contents for set in one step. Entries are
// upserted in order, so a later rule replaces an earlier one with the same
// property path. On error the registry is left unchanged.
func (r *Registry) Replace(set RuleSet) error {
	var rules []Rule
	for _, rule := range set.Rules {
		if rule.PropertyPath == "" || rule.ParamName == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "binding", "Replace",
				"propertyPath and paramName are required")
		}
		rules = upsertRule(rules, rule)
	}
	var triggers []Trigger
	for _, trigger := range set.Triggers {
		if trigger.PropertyPath == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "binding", "Replace",
				"trigger propertyPath is required")
		}
		triggers = upsertTrigger(triggers, trigger)
	}
	components := make(map[string]ComponentConfig, len(set.Components))
	for componentType, cfg := range set.Components {
		components[componentType] = ComponentConfig{
			Bindings: append([]Rule(nil), cfg.Bindings...),
			Triggers: append([]Trigger(nil), cfg.Triggers...),
		}
	}

	r.mu.Lock()
	r.bindings = rules
	r.triggers = triggers
	r.components = components
	r.mu.Unlock()
	r.logger.Debug("binding rules replaced", "rules", len(rules), "triggers", len(triggers), "components", len(components))
	return nil
}

// Rules returns the global bindings followed by those of componentType.
// A component rule overrides a global rule with the same property path.
func (r *Registry) Rules(componentType string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Rule(nil), r.bindings...)
	if cc, ok := r.components[componentType]; ok && componentType != "" {
		for _, rule := range cc.Bindings {
			out = upsertRule(out, rule)
		}
	}
	return out
}

// Triggers returns the global triggers followed by those of componentType.
func (r *Registry) Triggers(componentType string) []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Trigger(nil), r.triggers...)
	if cc, ok := r.components[componentType]; ok && componentType != "" {
		for _, t := range cc.Triggers {
			out = upsertTrigger(out, t)
		}
	}
	return out
}

// ShouldTriggerDataSource reports whether a change at propertyPath re-runs the data
// sources. A path matches an enabled trigger equal to it or an ancestor of it.
func (r *Registry) ShouldTriggerDataSource(propertyPath, componentType string) bool {
	_, ok := r.MatchTrigger(propertyPath, componentType)
	return ok
}

// MatchTrigger returns the enabled trigger covering propertyPath.
func (r *Registry) MatchTrigger(propertyPath, componentType string) (Trigger, bool) {
	if propertyPath == "" {
		return Trigger{}, false
	}
	for _, t := range r.Triggers(componentType) {
		if t.Enabled && pathutil.Covers(t.PropertyPath, propertyPath) {
			return t, true
		}
	}
	return Trigger{}, false
}

// BuildHTTPParams resolves every binding against config. A required binding whose
// path is absent returns an error wrapping errors.ErrRequiredBinding.
func (r *Registry) BuildHTTPParams(config map[string]any, componentType string) (map[string]any, error) {
	return r.build(config, nil, componentType)
}

// BuildAutoBindParams is BuildHTTPParams with node properties as fallback for
// paths the configuration lacks. Node properties are addressed like the
// configuration, e.g. "base.deviceId", or by the bare parameter name.
func (r *Registry) BuildAutoBindParams(config, nodeProperties map[string]any, componentType string) (map[string]any, error) {
	return r.build(config, nodeProperties, componentType)
}

func (r *Registry) build(config, fallback map[string]any, componentType string) (map[string]any, error) {
	params := make(map[string]any)
	var missing []string
	for _, rule := range r.Rules(componentType) {
		v, ok := resolve(config, rule.PropertyPath)
		if !ok && fallback != nil {
			v, ok = resolve(fallback, rule.PropertyPath)
			if !ok {
				v, ok = resolve(fallback, rule.ParamName)
			}
		}
		if !ok {
			if rule.Required {
				missing = append(missing, rule.PropertyPath)
			}
			continue
		}
		if rule.Transform != nil {
			v = rule.Transform(v)
		}
		params[rule.ParamName] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return params, errors.WrapInvalid(errors.ErrRequiredBinding, "binding", "build",
			fmt.Sprintf("unresolved required bindings %v", missing))
	}
	return params, nil
}

func resolve(m map[string]any, path string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := pathutil.Get(m, path)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Snapshot copies the registry contents.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Snapshot{
		Bindings:   append([]Rule{}, r.bindings...),
		Triggers:   append([]Trigger{}, r.triggers...),
		Components: make(map[string]ComponentConfig, len(r.components)),
	}
	for k, v := range r.components {
		s.Components[k] = v
	}
	return s
}

func upsertRule(rules []Rule, rule Rule) []Rule {
	for i, b := range rules {
		if b.PropertyPath == rule.PropertyPath {
			rules[i] = rule
			return rules
		}
	}
	return append(rules, rule)
}

func upsertTrigger(triggers []Trigger, trigger Trigger) []Trigger {
	for i, t := range triggers {
		if t.PropertyPath == trigger.PropertyPath {
			triggers[i] = trigger
			return triggers
		}
	}
	return append(triggers, trigger)
}
