package datasource

import "fmt"

// ItemType names the executor that produces a data item.
type ItemType string

const (
	ItemStatic    ItemType = "static"
	ItemHTTP      ItemType = "http"
	ItemJSON      ItemType = "json"
	ItemWebSocket ItemType = "websocket"
	ItemFile      ItemType = "file"
	ItemScript    ItemType = "script"
	ItemBindings  ItemType = "data-source-bindings"
)

// ItemTypes lists every known item type.
var ItemTypes = []ItemType{ItemStatic, ItemHTTP, ItemJSON, ItemWebSocket, ItemFile, ItemScript, ItemBindings}

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	for _, known := range ItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

// MergeType selects how the items of one source are combined.
type MergeType string

const (
	MergeObject  MergeType = "object"
	MergeArray   MergeType = "array"
	MergeReplace MergeType = "replace"
)

// Valid reports whether m is a known merge type.
func (m MergeType) Valid() bool {
	return m == MergeObject || m == MergeArray || m == MergeReplace
}

// Configuration is the canonical per-component data configuration.
type Configuration struct {
	ComponentID string        `json:"componentId"`
	DataSources []SourceEntry `json:"dataSources"`
	CreatedAt   int64         `json:"createdAt"`
	UpdatedAt   int64         `json:"updatedAt"`
}

// SourceEntry is one logical data feed; its SourceID is the key UI components bind to.
type SourceEntry struct {
	SourceID      string        `json:"sourceId"`
	DataItems     []DataItem    `json:"dataItems"`
	MergeStrategy MergeStrategy `json:"mergeStrategy"`
}

// MergeStrategy wraps the merge type so stored configurations can extend it.
type MergeStrategy struct {
	Type MergeType `json:"type"`
}

// DataItem is one fetch-and-transform unit within a source.
type DataItem struct {
	Item       Item       `json:"item"`
	Processing Processing `json:"processing"`
}

// Item names the executor type and carries its type-specific config.
type Item struct {
	Type   ItemType   `json:"type"`
	Config ItemConfig `json:"config"`
}

// Processing is applied to an item's data after execution.
type Processing struct {
	FilterPath   string `json:"filterPath"`
	CustomScript string `json:"customScript,omitempty"`
	DefaultValue any    `json:"defaultValue,omitempty"`
}

// Path returns the filter path, defaulting to the identity path.
func (p Processing) Path() string {
	if p.FilterPath == "" {
		return "$"
	}
	return p.FilterPath
}

// DefaultSourceID returns the source id assigned to the i-th (zero based) source
// when a configuration does not name it.
func DefaultSourceID(i int) string {
	return fmt.Sprintf("dataSource%d", i+1)
}

// ItemCount returns the number of data items across all sources.
func (c *Configuration) ItemCount() int {
	n := 0
	for _, src := range c.DataSources {
		n += len(src.DataItems)
	}
	return n
}

// Source returns the source entry with the given id.
func (c *Configuration) Source(sourceID string) (*SourceEntry, bool) {
	for i := range c.DataSources {
		if c.DataSources[i].SourceID == sourceID {
			return &c.DataSources[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy. Values keep their Go types, so an int in an
// item config stays an int in the copy.
func (c *Configuration) Clone() *Configuration {
	out := *c
	if c.DataSources != nil {
		out.DataSources = make([]SourceEntry, len(c.DataSources))
		for i, src := range c.DataSources {
			out.DataSources[i] = src.clone()
		}
	}
	return &out
}

func (s SourceEntry) clone() SourceEntry {
	out := s
	if s.DataItems != nil {
		out.DataItems = make([]DataItem, len(s.DataItems))
		for i, item := range s.DataItems {
			item.Item.Config = ItemConfig(CopyMap(item.Item.Config))
			item.Processing.DefaultValue = CopyValue(item.Processing.DefaultValue)
			out.DataItems[i] = item
		}
	}
	return out
}
