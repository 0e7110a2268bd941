// Package datasource defines the canonical widget data configuration and the
// execution result shared by the normalizer, executors, chain and bridge.
//
// A Configuration belongs to one component and holds one or more SourceEntry
// values. Each source combines DataItems, every item naming an executor type and
// its type-specific config, plus per-item processing (filter path, custom script,
// default value). JSON field names are camelCase to match stored configurations.
package datasource
