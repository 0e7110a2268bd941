package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/semwidgets/binding"
	"github.com/c360/semwidgets/bridge"
	"github.com/c360/semwidgets/chain"
	"github.com/c360/semwidgets/config"
	"github.com/c360/semwidgets/eventbus"
	"github.com/c360/semwidgets/executor"
	"github.com/c360/semwidgets/flow"
	"github.com/c360/semwidgets/gateway"
	"github.com/c360/semwidgets/health"
	"github.com/c360/semwidgets/metric"
	"github.com/c360/semwidgets/natsclient"
	"github.com/c360/semwidgets/redisclient"
	"github.com/c360/semwidgets/validator"
	"github.com/c360/semwidgets/warehouse"
	"github.com/c360/semwidgets/widgetstore"
)

// app holds the wired runtime. Stop releases components in reverse
// construction order.
type app struct {
	logger    *slog.Logger
	cfg       *config.Config
	metrics   *metric.MetricsRegistry
	warehouse *warehouse.Warehouse
	bindings  *binding.Registry
	bus       *eventbus.Bus
	nats      *natsclient.Client
	editor    *widgetstore.Editor
	bridge    *bridge.Bridge
	flow      *flow.Flow
	health    *health.Monitor

	metricsServer *metric.Server
	gateway       *gateway.Server
	watcher       *config.Watcher

	closers []func(ctx context.Context) error
}

func (a *app) onStop(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// buildApp wires every component from cfg. On error the partially built
// app is stopped before returning.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{
		logger:  logger,
		cfg:     cfg,
		metrics: metric.NewMetricsRegistry(),
		health:  health.NewMonitor(),
	}
	defer func() {
		if err != nil {
			_ = a.Stop(context.Background())
		}
	}()

	a.warehouse, err = warehouse.New(
		warehouse.WithExpiry(cfg.Warehouse.Expiry.D()),
		warehouse.WithCleanupInterval(cfg.Warehouse.CleanupInterval.D()),
		warehouse.WithMetrics(a.metrics),
		warehouse.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create warehouse: %w", err)
	}
	if err = a.warehouse.Start(ctx); err != nil {
		return nil, fmt.Errorf("start warehouse: %w", err)
	}
	a.onStop(func(context.Context) error {
		a.warehouse.Destroy()
		return nil
	})
	a.health.Register("warehouse", func() health.Status {
		stats := a.warehouse.GetStorageStats()
		return health.Healthy("warehouse", fmt.Sprintf("%d components cached", stats.TotalComponents))
	})

	execMetrics, err := executor.NewMetrics(a.metrics)
	if err != nil {
		return nil, fmt.Errorf("register executor metrics: %w", err)
	}
	executors := executor.NewRegistry(executor.WithLogger(logger), executor.WithMetrics(execMetrics))
	evaluator := executor.NewEvaluator()
	err = executor.RegisterDefaults(executors, executor.Defaults{
		Transport: &executor.HTTPTransport{
			Client:           &http.Client{},
			BaseURL:          cfg.HTTP.BaseURL,
			MaxResponseBytes: cfg.HTTP.MaxResponseBytes,
		},
		HTTPTimeout: cfg.HTTP.Timeout.D(),
		FileBaseDir: cfg.Files.BaseDir,
		Evaluator:   evaluator,
	})
	if err != nil {
		return nil, fmt.Errorf("register executors: %w", err)
	}
	pipeline := chain.New(executors,
		chain.WithCache(a.warehouse),
		chain.WithEvaluator(evaluator),
		chain.WithLogger(logger),
	)

	if a.bindings, err = buildBindings(cfg.Binding, logger); err != nil {
		return nil, err
	}

	a.bus, err = eventbus.New(a.metrics, eventbus.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create event bus: %w", err)
	}
	a.onStop(func(context.Context) error {
		a.bus.Close()
		return nil
	})

	store, err := a.setupStore(ctx)
	if err != nil {
		return nil, err
	}
	if a.editor, err = widgetstore.NewEditor(store, a.bus, logger); err != nil {
		return nil, fmt.Errorf("create editor: %w", err)
	}

	schemas, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("load validation schemas: %w", err)
	}
	a.bridge = bridge.New(pipeline, a.warehouse,
		bridge.WithConfigStore(a.editor),
		bridge.WithParamBuilder(a.bindings),
		bridge.WithValidator(schemas),
		bridge.WithMetrics(a.metrics.CoreMetrics()),
		bridge.WithLogger(logger),
	)

	a.flow, err = flow.New(a.bridge, a.bindings,
		flow.WithDebounce(cfg.Flow.Debounce.D()),
		flow.WithWorkers(cfg.Flow.Workers, cfg.Flow.QueueSize),
		flow.WithMetricsRegistry(a.metrics),
		flow.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create flow: %w", err)
	}
	if err = a.flow.Start(ctx); err != nil {
		return nil, fmt.Errorf("start flow: %w", err)
	}
	a.onStop(func(ctx context.Context) error {
		return a.flow.Stop(remaining(ctx, 5*time.Second))
	})
	a.health.Register("flow", func() health.Status {
		return health.Healthy("flow", fmt.Sprintf("%d components registered", len(a.flow.Registrations())))
	})
	detach := a.flow.AttachEventBus(a.bus)
	a.onStop(func(context.Context) error {
		detach()
		return nil
	})

	if err = a.seedWidgets(ctx); err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.metrics)
	}
	if cfg.Gateway.Enabled {
		if a.gateway, err = a.buildGateway(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func buildBindings(cfg config.BindingConfig, logger *slog.Logger) (*binding.Registry, error) {
	registry := binding.NewRegistry(binding.WithLogger(logger))
	if err := registry.Replace(bindingRules(cfg)); err != nil {
		return nil, fmt.Errorf("register binding rules: %w", err)
	}
	return registry, nil
}

// bindingRules layers the configured rules over the defaults unless they
// are disabled.
func bindingRules(cfg config.BindingConfig) binding.RuleSet {
	var set binding.RuleSet
	if !cfg.DisableDefaults {
		set.Rules = binding.DefaultRules()
		set.Triggers = binding.DefaultTriggers()
	}
	set.Rules = append(set.Rules, cfg.Rules...)
	set.Triggers = append(set.Triggers, cfg.Triggers...)
	set.Components = cfg.ComponentTypes
	return set
}

// setupStore connects NATS when enabled, then picks the widget store.
func (a *app) setupStore(ctx context.Context) (widgetstore.Store, error) {
	if a.cfg.NATS.Enabled {
		if err := a.setupNATS(ctx); err != nil {
			return nil, err
		}
	}
	switch a.cfg.Store.Mode {
	case config.StoreKV:
		return a.kvStore(ctx)
	case config.StoreRedis:
		return a.redisStore(ctx)
	default:
		return widgetstore.NewMemoryStore(), nil
	}
}

// setupNATS connects the client and attaches the config-change relay.
func (a *app) setupNATS(ctx context.Context) error {
	cfg := a.cfg
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithReconnect(cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait.D()),
		natsclient.WithAuth(natsclient.Auth{
			Username: cfg.NATS.Username,
			Password: cfg.NATS.Password,
			Token:    cfg.NATS.Token,
		}),
		natsclient.WithLogger(a.logger),
		natsclient.OnHealthChange(func(healthy bool) {
			a.logger.Info("nats health changed", "healthy", healthy)
			if healthy {
				a.health.Update("nats", health.Healthy("nats", "connected"))
			} else {
				a.health.Update("nats", health.Degraded("nats", "reconnecting"))
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.nats = client
	a.health.Update("nats", health.Healthy("nats", "connected"))
	a.onStop(client.Close)

	detach := eventbus.NewNATSRelay(client, cfg.NATS.SubjectPrefix, a.logger).Attach(a.bus)
	a.onStop(func(context.Context) error {
		detach()
		return nil
	})
	return nil
}

func (a *app) kvStore(ctx context.Context) (widgetstore.Store, error) {
	cfg := a.cfg
	bucket, err := a.nats.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.NATS.KVBucket,
		Description: "semwidgets widget configurations",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("open widget bucket: %w", err)
	}
	store, err := widgetstore.NewKVStore(natsclient.NewKVStore(bucket, natsclient.DefaultKVTimeout), a.logger)
	if err != nil {
		return nil, fmt.Errorf("create kv widget store: %w", err)
	}
	a.logger.Info("widget store backed by NATS KV", "bucket", cfg.NATS.KVBucket)
	return store, nil
}

func (a *app) redisStore(ctx context.Context) (widgetstore.Store, error) {
	cfg := a.cfg.Redis
	client, err := redisclient.Connect(ctx, redisclient.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.onStop(func(context.Context) error { return client.Close() })
	a.health.Register("redis", func() health.Status {
		if err := redisclient.Ping(context.Background(), client, time.Second); err != nil {
			return health.FromError("redis", err)
		}
		return health.Healthy("redis", "connected")
	})

	store, err := widgetstore.NewKVStore(redisclient.NewKVStore(client, cfg.KeyPrefix, redisclient.DefaultKVTimeout), a.logger)
	if err != nil {
		return nil, fmt.Errorf("create redis widget store: %w", err)
	}
	a.logger.Info("widget store backed by redis", "addr", cfg.Addr, "prefix", cfg.KeyPrefix)
	return store, nil
}

// seedWidgets stores configured widgets, then registers every stored widget
// with the flow so persisted widgets survive a restart.
func (a *app) seedWidgets(ctx context.Context) error {
	for _, seed := range a.cfg.Widgets {
		w := &widgetstore.Widget{
			ID:         seed.ID,
			Type:       seed.Type,
			Config:     seed.Config,
			Properties: seed.Properties,
		}
		if err := a.editor.Save(ctx, w); err != nil {
			return fmt.Errorf("seed widget %s: %w", seed.ID, err)
		}
	}

	widgets, err := a.editor.Store().List(ctx)
	if err != nil {
		return fmt.Errorf("list widgets: %w", err)
	}
	for _, w := range widgets {
		if err := a.flow.RegisterComponent(w.ID, w.Type, &w.Config); err != nil {
			return fmt.Errorf("register widget %s: %w", w.ID, err)
		}
	}
	a.logger.Info("widgets registered", "count", len(widgets))
	return nil
}

func (a *app) buildGateway() (*gateway.Server, error) {
	gc := a.cfg.Gateway
	return gateway.New(gateway.Config{
		Port:           gc.Port,
		EnableCORS:     gc.EnableCORS,
		CORSOrigins:    gc.CORSOrigins,
		MaxRequestSize: gc.MaxRequestSize,
		ExecuteTimeout: gc.ExecuteTimeout.D(),
		ExecuteRate:    gc.ExecuteRate,
		ExecuteBurst:   gc.ExecuteBurst,
	}, a.bridge, a.metrics,
		gateway.WithRunner(a.flow),
		gateway.WithEditor(a.editor),
		gateway.WithLogger(a.logger),
		gateway.WithHealth(a.health),
		gateway.WithStats("warehouse", func() any {
			return map[string]any{
				"performance": a.warehouse.GetPerformanceMetrics(),
				"storage":     a.warehouse.GetStorageStats(),
			}
		}),
		gateway.WithStats("events", func() any { return a.bus.Stats() }),
		gateway.WithStats("components", func() any { return a.flow.Registrations() }),
		gateway.WithStats("bindings", func() any { return a.bindings.Snapshot() }),
	)
}

// Serve runs the HTTP listeners until ctx is done or one of them fails.
func (a *app) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.metricsServer != nil {
		a.onStop(a.metricsServer.Stop)
		g.Go(a.metricsServer.Start)
		a.logger.Info("metrics endpoint enabled", "port", a.cfg.Metrics.Port, "path", a.cfg.Metrics.Path)
	}
	if a.gateway != nil {
		a.onStop(a.gateway.Stop)
		g.Go(a.gateway.Start)
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

// watchConfig reloads the loader's layers as they change on disk.
func (a *app) watchConfig(loader *config.Loader) error {
	w, err := config.NewWatcher(loader, a.applyConfig, a.logger)
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	a.watcher = w
	return nil
}

// applyConfig applies the reloadable parts of cfg: binding and trigger
// rules and the warehouse expiry. Other sections take effect on restart.
func (a *app) applyConfig(cfg *config.Config) {
	if err := a.bindings.Replace(bindingRules(cfg.Binding)); err != nil {
		a.logger.Warn("binding rules not reloaded", "error", err)
	} else {
		a.logger.Info("binding rules reloaded", "rules", len(cfg.Binding.Rules), "triggers", len(cfg.Binding.Triggers))
	}
	if expiry := cfg.Warehouse.Expiry.D(); expiry != a.warehouse.CacheExpiry() {
		a.warehouse.SetCacheExpiry(expiry)
		a.logger.Info("warehouse expiry changed", "expiry", expiry)
	}
}

// Stop runs the registered closers newest first and returns the first error.
func (a *app) Stop(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("shutdown step failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return fallback
}
