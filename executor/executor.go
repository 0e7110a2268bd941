// Package executor runs single data items. Every executor resolves to a
// datasource.Result: failures are tagged results, never Go errors or panics.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
)

// Input is what an executor receives for one data item.
type Input struct {
	Type   datasource.ItemType
	Config datasource.ItemConfig
	// Params are execution parameters built from component bindings.
	Params map[string]any
}

// Executor produces data for items of one type. Implementations must not write
// to the warehouse.
type Executor interface {
	Type() datasource.ItemType
	Execute(ctx context.Context, in Input) datasource.Result
}

// Validator is implemented by executors that can vet a config before running it.
type Validator interface {
	Validate(cfg datasource.ItemConfig) bool
}

// Cleaner is implemented by executors holding resources.
type Cleaner interface {
	Cleanup()
}

// Registry maps item types to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[datasource.ItemType]Executor
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches execution metrics. Nil disables them.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		executors: make(map[datasource.ItemType]Executor),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an executor. Registering a second executor for a type fails.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "nil executor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[e.Type()]; exists {
		return errors.WrapInvalid(errors.ErrAlreadyRegistered, "Registry", "Register",
			fmt.Sprintf("executor for %s", e.Type()))
	}
	r.executors[e.Type()] = e
	return nil
}

// Replace registers e, replacing any executor of the same type.
func (r *Registry) Replace(e Executor) {
	r.mu.Lock()
	r.executors[e.Type()] = e
	r.mu.Unlock()
}

// Get returns the executor for t.
func (r *Registry) Get(t datasource.ItemType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[t]
	return e, ok
}

// Has reports whether an executor is registered for t.
func (r *Registry) Has(t datasource.ItemType) bool {
	_, ok := r.Get(t)
	return ok
}

// Types returns the registered item types in sorted order.
func (r *Registry) Types() []datasource.ItemType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]datasource.ItemType, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Execute runs in through its executor. Unknown types, rejected configs and
// panics all become failed results. responseTime (milliseconds) is always set.
func (r *Registry) Execute(ctx context.Context, in Input) datasource.Result {
	start := time.Now()
	res := r.execute(ctx, in)
	elapsed := time.Since(start)

	res = res.WithMeta("responseTime", elapsed.Milliseconds()).WithMeta("executorType", string(in.Type))
	r.metrics.record(in.Type, res.Success, elapsed)
	if !res.Success {
		r.logger.Debug("data item execution failed",
			"type", in.Type, "error_code", res.ErrorCode, "error", res.Error)
	}
	return res
}

func (r *Registry) execute(ctx context.Context, in Input) (res datasource.Result) {
	e, ok := r.Get(in.Type)
	if !ok {
		return datasource.Failed(datasource.CodeExecutorNotFound, "no executor registered for type %q", in.Type)
	}
	if in.Config == nil {
		in.Config = datasource.ItemConfig{}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("executor panicked", "type", in.Type, "panic", p)
			res = datasource.Failed(datasource.CodeExecutorPanic, "executor %s panicked: %v", in.Type, p)
		}
	}()

	if v, ok := e.(Validator); ok && !v.Validate(in.Config) {
		return datasource.Failed(datasource.CodeInvalidConfig, "invalid %s config", in.Type)
	}
	return e.Execute(ctx, in)
}

// Cleanup releases resources held by every registered executor.
func (r *Registry) Cleanup() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for t, e := range r.executors {
		if c, ok := e.(Cleaner); ok {
			func() {
				defer func() {
					if p := recover(); p != nil {
						r.logger.Warn("executor cleanup panicked", "type", t, "panic", p)
					}
				}()
				c.Cleanup()
			}()
		}
	}
}
