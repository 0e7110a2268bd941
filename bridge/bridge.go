// Package bridge is the entry point for component data: it refreshes a
// component's configuration, normalizes it, runs the execution chain, stores
// the results and notifies data update subscribers.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/semwidgets/chain"
	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/metric"
	"github.com/c360/semwidgets/normalizer"
	"github.com/c360/semwidgets/pkg/timestamp"
	"github.com/c360/semwidgets/validator"
	"github.com/c360/semwidgets/warehouse"
)

// ConfigStore is the external configuration store. A missing component
// returns nil without error.
type ConfigStore interface {
	GetConfiguration(ctx context.Context, componentID string) (*datasource.WidgetConfig, error)
}

// ParamBuilder turns a widget configuration into execution parameters.
// *binding.Registry satisfies it.
type ParamBuilder interface {
	BuildHTTPParams(config map[string]any, componentType string) (map[string]any, error)
}

// Requirement is what a component asks for.
type Requirement struct {
	ComponentID   string `json:"componentId"`
	ComponentType string `json:"componentType,omitempty"`
	// DataSource is the data source configuration in any supported shape.
	DataSource any `json:"dataSource,omitempty"`
	// Params are merged over parameters built from the configuration.
	Params map[string]any `json:"params,omitempty"`
}

// DataResult is the outcome of ExecuteComponent.
type DataResult struct {
	Success     bool                 `json:"success"`
	ComponentID string               `json:"componentId"`
	Data        map[string]any       `json:"data,omitempty"`
	Error       string               `json:"error,omitempty"`
	ErrorCode   datasource.ErrorCode `json:"errorCode,omitempty"`
	Shape       string               `json:"shape,omitempty"`
	Items       []chain.ItemOutcome  `json:"items,omitempty"`
	Validation  *validator.Report    `json:"validation,omitempty"`
	Timestamp   int64                `json:"timestamp"`
}

// UpdateFunc receives fresh component data.
type UpdateFunc func(componentID string, data map[string]any)

type subscriber struct {
	id uint64
	fn UpdateFunc
}

// Bridge is safe for concurrent use. Executions of different components run
// independently; concurrent executions of one component are last-writer-wins
// at the warehouse.
type Bridge struct {
	chain     *chain.Chain
	warehouse *warehouse.Warehouse
	store     ConfigStore
	params    ParamBuilder
	validator *validator.Validator
	metrics   *metric.Metrics
	logger    *slog.Logger

	mu          sync.RWMutex
	subscribers []subscriber
	nextID      uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithConfigStore sets the store read before every execution.
func WithConfigStore(store ConfigStore) Option {
	return func(b *Bridge) { b.store = store }
}

// WithParamBuilder sets how execution parameters are derived from the configuration.
func WithParamBuilder(p ParamBuilder) Option {
	return func(b *Bridge) { b.params = p }
}

// WithValidator attaches a validation report to each result. Validation never blocks execution.
func WithValidator(v *validator.Validator) Option {
	return func(b *Bridge) { b.validator = v }
}

// WithMetrics records executions and updates. Nil disables metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a bridge over c and w.
func New(c *chain.Chain, w *warehouse.Warehouse, opts ...Option) *Bridge {
	b := &Bridge{chain: c, warehouse: w, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ExecuteComponent refreshes and runs the data sources of one component. It
// never panics and reports every failure through DataResult.
func (b *Bridge) ExecuteComponent(ctx context.Context, req Requirement) (result DataResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("component execution panicked", "component_id", req.ComponentID, "panic", fmt.Sprint(r))
			result = failure(req.ComponentID, datasource.CodeExecutorPanic, fmt.Sprintf("execution panicked: %v", r))
		}
		b.metrics.RecordExecution(result.Success, time.Since(start))
	}()

	if req.ComponentID == "" {
		return failure("", datasource.CodeInvalidConfig, "componentId is required")
	}

	// Stale data must never survive an edit.
	b.warehouse.ClearComponentCache(req.ComponentID)

	snapshot := b.snapshot(ctx, req.ComponentID)
	source := req.DataSource
	if snapshot != nil && len(snapshot.DataSource) > 0 {
		source = snapshot.DataSource
	}
	if source == nil {
		return failure(req.ComponentID, datasource.CodeInvalidConfig, "component has no data source configuration")
	}

	params, err := b.buildParams(snapshot, req)
	if err != nil {
		return failure(req.ComponentID, datasource.CodeInvalidConfig, err.Error())
	}

	shape := normalizer.DetectValue(source)
	cfg := normalizer.Normalize(source, req.ComponentID)

	var report *validator.Report
	if b.validator != nil {
		r := b.validator.ValidateConfiguration(cfg)
		report = &r
		if !r.Valid {
			b.logger.Warn("executing component with invalid configuration",
				"component_id", req.ComponentID, "errors", r.Errors)
		}
	}

	out := b.chain.Execute(ctx, cfg, chain.Options{ForceRefresh: true, Params: params})
	if !out.Success {
		res := failure(req.ComponentID, out.ErrorCode, out.Error)
		res.Shape = shape.String()
		res.Validation = report
		return res
	}

	data := out.Sources()
	for _, src := range cfg.DataSources {
		b.warehouse.StoreComponentData(req.ComponentID, src.SourceID, data[src.SourceID], sourceType(src))
	}
	b.warehouse.StoreCompleteData(req.ComponentID, data)
	b.notify(req.ComponentID, data)

	return DataResult{
		Success:     true,
		ComponentID: req.ComponentID,
		Data:        data,
		Shape:       shape.String(),
		Items:       out.Items,
		Validation:  report,
		Timestamp:   timestamp.Now(),
	}
}

func (b *Bridge) snapshot(ctx context.Context, componentID string) *datasource.WidgetConfig {
	if b.store == nil {
		return nil
	}
	cfg, err := b.store.GetConfiguration(ctx, componentID)
	if err != nil {
		b.logger.Warn("configuration snapshot unavailable", "component_id", componentID, "error", err)
		return nil
	}
	return cfg
}

func (b *Bridge) buildParams(snapshot *datasource.WidgetConfig, req Requirement) (map[string]any, error) {
	params := make(map[string]any)
	if b.params != nil && snapshot != nil {
		built, err := b.params.BuildHTTPParams(snapshot.AsMap(), req.ComponentType)
		if err != nil {
			return nil, err
		}
		for k, v := range built {
			params[k] = v
		}
	}
	for k, v := range req.Params {
		params[k] = v
	}
	return params, nil
}

func sourceType(src datasource.SourceEntry) string {
	if len(src.DataItems) == 1 {
		return string(src.DataItems[0].Item.Type)
	}
	return "merged"
}

// OnDataUpdate subscribes fn to every successful execution.
func (b *Bridge) OnDataUpdate(fn UpdateFunc) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == id {
				b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (b *Bridge) notify(componentID string, data map[string]any) {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subscribers...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(s.fn, componentID, datasource.CopyMap(data))
	}
}

func (b *Bridge) call(fn UpdateFunc, componentID string, data map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordSubscriberError()
			b.logger.Warn("data update subscriber panicked",
				"component_id", componentID, "panic", fmt.Sprint(r))
		}
	}()
	fn(componentID, data)
	b.metrics.RecordDataUpdate()
}

// GetComponentData reads the cached data of a component.
func (b *Bridge) GetComponentData(componentID string) (map[string]any, bool) {
	return b.warehouse.GetComponentData(componentID)
}

// ClearComponent drops the cached data of a component.
func (b *Bridge) ClearComponent(componentID string) {
	b.warehouse.ClearComponentCache(componentID)
}

// Warehouse returns the underlying warehouse.
func (b *Bridge) Warehouse() *warehouse.Warehouse {
	return b.warehouse
}

func failure(componentID string, code datasource.ErrorCode, msg string) DataResult {
	return DataResult{
		Success:     false,
		ComponentID: componentID,
		Error:       msg,
		ErrorCode:   code,
		Timestamp:   timestamp.Now(),
	}
}
