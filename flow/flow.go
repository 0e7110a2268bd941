// Package flow propagates widget configuration changes to data source
// execution.
//
// Each registered component holds a live configuration snapshot. An update to
// one section is diffed leaf by leaf against the previous section; when any
// changed path is whitelisted by a trigger rule, an execution is scheduled
// after a fixed debounce window. A newer change restarts the window, so a
// burst of edits runs once with the last configuration. At most one execution
// per component runs at a time: a request arriving while one is in flight is
// dropped, not queued.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/semwidgets/bridge"
	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/eventbus"
	"github.com/c360/semwidgets/metric"
	"github.com/c360/semwidgets/pkg/pathutil"
	"github.com/c360/semwidgets/pkg/timestamp"
	"github.com/c360/semwidgets/pkg/worker"
)

// DefaultDebounce is the debounce window.
const DefaultDebounce = 100 * time.Millisecond

// Executor runs a component. *bridge.Bridge satisfies it.
type Executor interface {
	ExecuteComponent(ctx context.Context, req bridge.Requirement) bridge.DataResult
}

// Rules decides which changes trigger and builds execution parameters.
// *binding.Registry satisfies it.
type Rules interface {
	ShouldTriggerDataSource(propertyPath, componentType string) bool
	BuildHTTPParams(config map[string]any, componentType string) (map[string]any, error)
}

// Registration is the live configuration of a component.
type Registration struct {
	ComponentID   string                  `json:"componentId"`
	ComponentType string                  `json:"componentType"`
	Config        datasource.WidgetConfig `json:"config"`
	State         State                   `json:"state"`
	RegisteredAt  int64                   `json:"registeredAt"`
	LastExecuted  int64                   `json:"lastExecuted,omitempty"`
}

type component struct {
	reg        Registration
	timer      Timer
	generation uint64
	inFlight   bool
}

type job struct {
	componentID string
	generation  uint64
}

// Flow is safe for concurrent use.
type Flow struct {
	executor Executor
	rules    Rules
	debounce time.Duration
	newTimer TimerFactory
	pool     *worker.Pool[job]
	metrics  *flowMetrics
	core     *metric.Metrics
	logger   *slog.Logger

	mu         sync.Mutex
	components map[string]*component
}

type options struct {
	debounce  time.Duration
	timers    TimerFactory
	workers   int
	queueSize int
	registry  *metric.MetricsRegistry
	logger    *slog.Logger
}

// Option configures a Flow.
type Option func(*options)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithTimerFactory replaces the timer implementation.
func WithTimerFactory(f TimerFactory) Option {
	return func(o *options) {
		if f != nil {
			o.timers = f
		}
	}
}

// WithWorkers bounds concurrent executions across components.
func WithWorkers(workers, queueSize int) Option {
	return func(o *options) {
		o.workers = workers
		o.queueSize = queueSize
	}
}

// WithMetricsRegistry exports flow and worker pool metrics.
func WithMetricsRegistry(registry *metric.MetricsRegistry) Option {
	return func(o *options) { o.registry = registry }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a flow. Start must be called before scheduled executions run.
func New(executor Executor, rules Rules, opts ...Option) (*Flow, error) {
	if executor == nil || rules == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "flow", "New", "executor and rules are required")
	}
	o := options{
		debounce: DefaultDebounce,
		timers:   RealTimers,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	m, err := newFlowMetrics(o.registry)
	if err != nil {
		return nil, errors.Wrap(err, "flow", "New", "register metrics")
	}

	f := &Flow{
		executor:   executor,
		rules:      rules,
		debounce:   o.debounce,
		newTimer:   o.timers,
		metrics:    m,
		logger:     o.logger,
		components: make(map[string]*component),
	}
	if o.registry != nil {
		f.core = o.registry.CoreMetrics()
	}

	f.pool, err = worker.NewPool(o.workers, o.queueSize, f.process,
		worker.WithMetricsRegistry[job](o.registry, "flow"),
		worker.WithLogger[job](o.logger))
	if err != nil {
		return nil, errors.Wrap(err, "flow", "New", "create worker pool")
	}
	return f, nil
}

// Start launches the execution workers.
func (f *Flow) Start(ctx context.Context) error {
	if err := f.pool.Start(ctx); err != nil {
		return errors.WrapInvalid(err, "flow", "Start", "start worker pool")
	}
	return nil
}

// Stop cancels pending debounces and waits up to timeout for running executions.
func (f *Flow) Stop(timeout time.Duration) error {
	f.mu.Lock()
	for _, c := range f.components {
		f.cancelTimer(c)
	}
	f.mu.Unlock()
	return f.pool.Stop(timeout)
}

// RegisterComponent starts tracking a component. Registering again replaces
// the snapshot and cancels a pending execution.
func (f *Flow) RegisterComponent(componentID, componentType string, cfg *datasource.WidgetConfig) error {
	if componentID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "flow", "RegisterComponent", "componentId is required")
	}
	snapshot := datasource.WidgetConfig{}
	if cfg != nil {
		snapshot = copyWidget(*cfg)
	}

	f.mu.Lock()
	if old, ok := f.components[componentID]; ok {
		f.cancelTimer(old)
	}
	f.components[componentID] = &component{reg: Registration{
		ComponentID:   componentID,
		ComponentType: componentType,
		Config:        snapshot,
		State:         StateRegistered,
		RegisteredAt:  timestamp.Now(),
	}}
	n := len(f.components)
	f.mu.Unlock()

	f.core.SetRegisteredComponents(n)
	f.logger.Debug("component registered", "component_id", componentID, "component_type", componentType)
	return nil
}

// UnregisterComponent stops tracking a component and cancels its pending execution.
// An execution already running completes.
func (f *Flow) UnregisterComponent(componentID string) bool {
	f.mu.Lock()
	c, ok := f.components[componentID]
	if ok {
		f.cancelTimer(c)
		delete(f.components, componentID)
	}
	n := len(f.components)
	f.mu.Unlock()

	if ok {
		f.core.SetRegisteredComponents(n)
	}
	return ok
}

// UpdateComponentConfig replaces one section of a registered component and
// schedules an execution when a changed path is a trigger. It returns the
// changed paths that triggered.
func (f *Flow) UpdateComponentConfig(componentID, section string, newConfig map[string]any) ([]string, error) {
	if !datasource.ValidSection(section) {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "flow", "UpdateComponentConfig",
			fmt.Sprintf("unknown section %q", section))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.components[componentID]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrNotRegistered, "flow", "UpdateComponentConfig",
			fmt.Sprintf("component %s", componentID))
	}

	before := c.reg.Config.Section(section)
	after := datasource.CopyMap(newConfig)
	changed := pathutil.Diff(section, before, after)
	c.reg.Config.SetSection(section, after)

	var triggered []string
	for _, p := range changed {
		if f.rules.ShouldTriggerDataSource(p, c.reg.ComponentType) {
			triggered = append(triggered, p)
		}
	}
	if len(triggered) > 0 {
		f.schedule(c)
		f.logger.Debug("execution scheduled",
			"component_id", componentID, "section", section, "paths", triggered)
	}
	return triggered, nil
}

// Trigger schedules a debounced execution regardless of trigger rules.
func (f *Flow) Trigger(componentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.components[componentID]
	if !ok {
		return errors.WrapInvalid(errors.ErrNotRegistered, "flow", "Trigger", fmt.Sprintf("component %s", componentID))
	}
	f.schedule(c)
	return nil
}

// schedule restarts the debounce window. Caller holds f.mu.
func (f *Flow) schedule(c *component) {
	f.cancelTimer(c)
	c.generation++
	gen := c.generation
	id := c.reg.ComponentID
	c.reg.State = StateDebouncing
	c.timer = f.newTimer(f.debounce, func() { f.fire(id, gen) })
	f.metrics.recordScheduled()
}

// cancelTimer stops a pending debounce. Caller holds f.mu.
func (f *Flow) cancelTimer(c *component) {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	if c.reg.State == StateDebouncing {
		c.reg.State = StateRegistered
		if c.inFlight {
			c.reg.State = StateExecuting
		}
	}
}

func (f *Flow) fire(componentID string, gen uint64) {
	f.mu.Lock()
	c, ok := f.components[componentID]
	if !ok || c.generation != gen {
		f.mu.Unlock()
		return
	}
	c.timer = nil
	f.mu.Unlock()

	if err := f.pool.Submit(job{componentID: componentID, generation: gen}); err != nil {
		f.metrics.recordSkipped("queue")
		f.logger.Warn("execution dropped", "component_id", componentID, "error", err)
		f.mu.Lock()
		if c, ok := f.components[componentID]; ok && c.generation == gen && c.reg.State == StateDebouncing {
			c.reg.State = StateRegistered
		}
		f.mu.Unlock()
	}
}

func (f *Flow) process(ctx context.Context, j job) error {
	f.mu.Lock()
	c, ok := f.components[j.componentID]
	superseded := !ok || c.generation != j.generation
	f.mu.Unlock()
	if superseded {
		f.metrics.recordSkipped("superseded")
		return nil
	}

	res, executed := f.ExecuteDataSource(ctx, j.componentID)
	if executed && !res.Success {
		return fmt.Errorf("component %s: %s", j.componentID, res.Error)
	}
	return nil
}

// ExecuteDataSource runs a registered component now. The second result is
// false when nothing ran: the component is unknown or already executing.
func (f *Flow) ExecuteDataSource(ctx context.Context, componentID string) (bridge.DataResult, bool) {
	f.mu.Lock()
	c, ok := f.components[componentID]
	if !ok {
		f.mu.Unlock()
		f.metrics.recordSkipped("unregistered")
		return bridge.DataResult{ComponentID: componentID, Error: "component not registered",
			ErrorCode: datasource.CodeInvalidConfig}, false
	}
	if c.inFlight {
		if c.timer == nil && c.reg.State == StateDebouncing {
			c.reg.State = StateExecuting
		}
		f.mu.Unlock()
		f.metrics.recordSkipped("in_flight")
		f.logger.Debug("execution skipped, already in flight", "component_id", componentID)
		return bridge.DataResult{ComponentID: componentID}, false
	}
	c.inFlight = true
	if c.timer == nil {
		c.reg.State = StateExecuting
	}
	reg := c.reg
	reg.Config = copyWidget(c.reg.Config)
	f.mu.Unlock()

	defer f.finish(c)

	req := bridge.Requirement{
		ComponentID:   componentID,
		ComponentType: reg.ComponentType,
		DataSource:    reg.Config.DataSource,
	}
	params, err := f.rules.BuildHTTPParams(reg.Config.AsMap(), reg.ComponentType)
	if err != nil {
		f.metrics.recordExecuted(false)
		f.logger.Warn("execution parameters unresolved", "component_id", componentID, "error", err)
		return bridge.DataResult{ComponentID: componentID, Error: err.Error(),
			ErrorCode: datasource.CodeInvalidConfig, Timestamp: timestamp.Now()}, true
	}
	req.Params = params

	res := f.executor.ExecuteComponent(ctx, req)
	f.metrics.recordExecuted(res.Success)
	if !res.Success {
		f.logger.Warn("component execution failed",
			"component_id", componentID, "error_code", res.ErrorCode, "error", res.Error)
	}
	return res, true
}

func (f *Flow) finish(c *component) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.inFlight = false
	c.reg.LastExecuted = timestamp.Now()
	switch {
	case c.reg.State == StateExecuting:
		c.reg.State = StateRegistered
	case c.reg.State == StateDebouncing && c.timer == nil:
		// the debounce already fired and its run was skipped against this one
		c.reg.State = StateRegistered
	}
}

// State returns the state of a component.
func (f *Flow) State(componentID string) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.components[componentID]
	if !ok {
		return StateUnregistered
	}
	return c.reg.State
}

// Registration returns a copy of a component's registration.
func (f *Flow) Registration(componentID string) (Registration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.components[componentID]
	if !ok {
		return Registration{}, false
	}
	reg := c.reg
	reg.Config = copyWidget(c.reg.Config)
	return reg, true
}

// Registrations returns copies of every registration, ordered by component id.
func (f *Flow) Registrations() []Registration {
	f.mu.Lock()
	out := make([]Registration, 0, len(f.components))
	for _, c := range f.components {
		reg := c.reg
		reg.Config = copyWidget(c.reg.Config)
		out = append(out, reg)
	}
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out
}

// AttachEventBus feeds config-changed events into UpdateComponentConfig.
// Events marked skipExecution and events for unregistered components are ignored.
func (f *Flow) AttachEventBus(bus *eventbus.Bus) (detach func()) {
	return bus.OnConfigChange(eventbus.TypeConfigChanged, func(_ context.Context, ev eventbus.Event) error {
		if ev.SkipExecution() {
			return nil
		}
		f.mu.Lock()
		_, registered := f.components[ev.ComponentID]
		f.mu.Unlock()
		if !registered {
			return nil
		}
		_, err := f.UpdateComponentConfig(ev.ComponentID, ev.Section, ev.NewConfig)
		return err
	})
}

func copyWidget(w datasource.WidgetConfig) datasource.WidgetConfig {
	return datasource.WidgetConfig{
		Base:        datasource.CopyMap(w.Base),
		Component:   datasource.CopyMap(w.Component),
		DataSource:  datasource.CopyMap(w.DataSource),
		Interaction: datasource.CopyMap(w.Interaction),
	}
}
