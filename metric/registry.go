// Package metric provides the Prometheus registry shared by the widget
// runtime. Each package registers its collectors under an owner name so a
// second registration of the same metric is reported instead of panicking.
package metric

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360/semwidgets/errors"
)

// Registrar is the registration surface packages depend on.
type Registrar interface {
	Register(owner, name string, c prometheus.Collector) error
	Unregister(owner, name string) bool
}

type metricKey struct{ owner, name string }

func (k metricKey) String() string { return k.owner + "." + k.name }

// MetricsRegistry wraps a private prometheus.Registry holding the core
// runtime metrics, the Go runtime collectors and any owner metrics.
type MetricsRegistry struct {
	mu    sync.Mutex
	prom  *prometheus.Registry
	core  *Metrics
	owned map[metricKey]prometheus.Collector
}

var _ Registrar = (*MetricsRegistry)(nil)

// NewMetricsRegistry creates a registry with the core metrics registered.
func NewMetricsRegistry() *MetricsRegistry {
	r := &MetricsRegistry{
		prom:  prometheus.NewRegistry(),
		core:  NewMetrics(),
		owned: make(map[metricKey]prometheus.Collector),
	}
	r.prom.MustRegister(r.core.collectors()...)
	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying registry for gathering.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prom
}

// CoreMetrics returns the runtime-wide metrics.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.core
}

// Register adds c under owner/name. Registering the same pair twice, or a
// collector whose descriptors clash with one already present, is an invalid
// error.
func (r *MetricsRegistry) Register(owner, name string, c prometheus.Collector) error {
	key := metricKey{owner, name}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.owned[key]; dup {
		return errors.WrapInvalid(errors.ErrAlreadyRegistered, "MetricsRegistry", "Register", key.String())
	}
	if err := r.prom.Register(c); err != nil {
		var clash prometheus.AlreadyRegisteredError
		if stderrors.As(err, &clash) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register", fmt.Sprintf("%s clashes with an existing collector", key))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register", key.String())
	}
	r.owned[key] = c
	return nil
}

// RegisterCounter registers a counter.
func (r *MetricsRegistry) RegisterCounter(owner, name string, c prometheus.Counter) error {
	return r.Register(owner, name, c)
}

// RegisterGauge registers a gauge.
func (r *MetricsRegistry) RegisterGauge(owner, name string, g prometheus.Gauge) error {
	return r.Register(owner, name, g)
}

// RegisterHistogram registers a histogram.
func (r *MetricsRegistry) RegisterHistogram(owner, name string, h prometheus.Histogram) error {
	return r.Register(owner, name, h)
}

// RegisterCounterVec registers a labelled counter.
func (r *MetricsRegistry) RegisterCounterVec(owner, name string, v *prometheus.CounterVec) error {
	return r.Register(owner, name, v)
}

// RegisterHistogramVec registers a labelled histogram.
func (r *MetricsRegistry) RegisterHistogramVec(owner, name string, v *prometheus.HistogramVec) error {
	return r.Register(owner, name, v)
}

// Unregister removes owner/name and reports whether it was present.
func (r *MetricsRegistry) Unregister(owner, name string) bool {
	key := metricKey{owner, name}

	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.owned[key]
	if !ok || !r.prom.Unregister(c) {
		return false
	}
	delete(r.owned, key)
	return true
}

// Registered lists the owner metrics as "owner.name", sorted.
func (r *MetricsRegistry) Registered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.owned))
	for k := range r.owned {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}
