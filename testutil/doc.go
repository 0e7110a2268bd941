// Package testutil provides shared test doubles for the widget data pipeline.
//
// MockPublisher records published NATS messages and can fail on demand.
// FakeTransport answers HTTP executor requests from a handler function and
// records every request. MockKV is an in-memory key-value bucket with
// revisions. The fixtures build canonical configurations and widget
// configurations with the minimum boilerplate.
//
// Everything here is safe for concurrent use and needs no external server.
package testutil
