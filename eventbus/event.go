package eventbus

import (
	"github.com/c360/semwidgets/datasource"
)

// Event types delivered by the bus.
const (
	TypeConfigChanged         = "config-changed"
	TypeDataSourceChanged     = "data-source-changed"
	TypeComponentPropsChanged = "component-props-changed"
	TypeBaseConfigChanged     = "base-config-changed"
	TypeInteractionChanged    = "interaction-changed"
	TypeBeforeConfigChange    = "before-config-change"
	TypeAfterConfigChange     = "after-config-change"

	// TypeAll subscribes a handler to every delivered type.
	TypeAll = "*"
)

// ContextSkipExecution in Event.Context marks a change that must not re-run data sources.
const ContextSkipExecution = "skipExecution"

// Event describes a change to one section of a widget configuration.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	ComponentID   string         `json:"componentId"`
	ComponentType string         `json:"componentType,omitempty"`
	Section       string         `json:"section"`
	OldConfig     map[string]any `json:"oldConfig,omitempty"`
	NewConfig     map[string]any `json:"newConfig,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Source        string         `json:"source,omitempty"`
	Timestamp     int64          `json:"timestamp"`
}

// SkipExecution reports whether the event asks listeners not to re-execute.
func (e Event) SkipExecution() bool {
	skip, _ := e.Context[ContextSkipExecution].(bool)
	return skip
}

// DerivedTypes returns the generic change type followed by the section specific one.
func DerivedTypes(section string) []string {
	types := []string{TypeConfigChanged}
	switch section {
	case datasource.SectionDataSource:
		types = append(types, TypeDataSourceChanged)
	case datasource.SectionComponent:
		types = append(types, TypeComponentPropsChanged)
	case datasource.SectionBase:
		types = append(types, TypeBaseConfigChanged)
	case datasource.SectionInteraction:
		types = append(types, TypeInteractionChanged)
	}
	return types
}
