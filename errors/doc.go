// Package errors provides standardized error handling for the semwidgets pipeline.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: timeouts, lost connections, failed requests (a later attempt may succeed)
//   - Invalid: malformed input, bad configuration, unresolved required bindings
//   - Fatal: shutdown or unrecoverable states
//
// # Wrapping
//
// Wrap third-party errors with the component and operation that observed them:
//
//	if err := json.Unmarshal(raw, &cfg); err != nil {
//	    return errors.WrapInvalid(err, "Loader", "Load", "decode config")
//	}
//
// The resulting message follows "component.method: action failed: cause" and the
// original error stays reachable through errors.Is and errors.As.
//
// # Executor Boundary
//
// Source executors never return Go errors to the execution chain. Failures are carried
// as tagged results (see datasource.Result and datasource.ErrorCode). This package is
// used for the surrounding plumbing: registries, configuration, stores and transports.
package errors
