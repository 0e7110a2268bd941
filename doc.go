// Package semwidgets is a configuration-driven data runtime for dashboard
// widgets. Each widget declares where its data comes from (static values,
// HTTP endpoints, files, websocket snapshots, scripts or JSON literals) and
// the runtime fetches, combines, caches and pushes that data as the widget's
// configuration changes.
//
// # Architecture
//
// Data moves through these packages, in order:
//
//	widget config -> normalizer -> validator -> chain (executors) -> warehouse -> bridge -> gateway
//	                                               ^                                |
//	                         flow (debounce, triggers) <- eventbus <- widgetstore <--+
//
//   - datasource: canonical data source configuration, item types, results
//     and error codes shared by every other package.
//   - normalizer: detects the shape of a raw data source configuration
//     (single item, multiple sources, legacy forms) and converts it to and
//     from the canonical form.
//   - validator: JSON Schema checks per item type plus contract checks.
//   - executor: one executor per item type behind a Registry, with retrying
//     HTTP transport, confined file reads and an expr-based script evaluator.
//   - chain: runs a configuration's sources and items in order, resolving
//     references between items and merging results.
//   - warehouse: TTL cache of per-source component data with hit and miss
//     statistics.
//   - binding: rules that map widget properties to execution parameters, and
//     trigger rules that decide which property changes re-run a data source.
//   - bridge: executes a component requirement end to end and notifies data
//     subscribers.
//   - eventbus: typed configuration change events with filters, plus an
//     optional NATS relay.
//   - widgetstore: widget persistence (memory, NATS KV or Redis) and the editor that
//     applies section updates and emits change events.
//   - flow: tracks registered components, debounces triggering changes and
//     runs at most one execution per component at a time.
//   - gateway: HTTP API and websocket push for data, execution, config
//     updates, stats and health.
//
// Ambient packages: errors (classified errors), config (layered JSON/YAML
// configuration with SEMWIDGETS_* overrides and file watching), metric
// (Prometheus registry and endpoint), health (aggregated health), natsclient
// and redisclient (connections and KV adapters), and pkg/ utilities (cache,
// retry, worker, pathutil, timestamp).
//
// The cmd/semwidgets binary wires everything from configuration.
package semwidgets
