package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semwidgets/metric"
)

type busMetrics struct {
	emitted  *prometheus.CounterVec
	failures *prometheus.CounterVec
	filtered prometheus.Counter
}

func newBusMetrics(registry *metric.MetricsRegistry) (*busMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &busMetrics{
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "eventbus",
			Name:      "events_total",
			Help:      "Events delivered by type",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "eventbus",
			Name:      "handler_failures_total",
			Help:      "Handler errors and panics by event type",
		}, []string{"type"}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "eventbus",
			Name:      "filtered_total",
			Help:      "Emissions vetoed by a filter",
		}),
	}
	if err := registry.RegisterCounterVec("eventbus", "events_total", m.emitted); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("eventbus", "handler_failures_total", m.failures); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("eventbus", "filtered_total", m.filtered); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *busMetrics) recordEmitted(t string) {
	if m != nil {
		m.emitted.WithLabelValues(t).Inc()
	}
}

func (m *busMetrics) recordFailure(t string) {
	if m != nil {
		m.failures.WithLabelValues(t).Inc()
	}
}

func (m *busMetrics) recordFiltered() {
	if m != nil {
		m.filtered.Inc()
	}
}
