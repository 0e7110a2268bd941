package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the Prometheus namespace used by every pipeline metric.
const Namespace = "semwidgets"

// Metrics contains the pipeline-level metrics shared across services
type Metrics struct {
	ComponentExecutions *prometheus.CounterVec
	ComponentDuration   *prometheus.HistogramVec
	DataUpdates         prometheus.Counter
	SubscriberErrors    prometheus.Counter
	RegisteredComponent prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "bridge",
				Name:      "executions_total",
				Help:      "Component executions by outcome (success, failure)",
			},
			[]string{"status"},
		),

		ComponentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "bridge",
				Name:      "execution_duration_seconds",
				Help:      "End-to-end component execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		DataUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "bridge",
			Name:      "data_updates_total",
			Help:      "Data update notifications delivered to subscribers",
		}),

		SubscriberErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "bridge",
			Name:      "subscriber_errors_total",
			Help:      "Data update callbacks that panicked",
		}),

		RegisteredComponent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "flow",
			Name:      "registered_components",
			Help:      "Components currently registered with the change propagation flow",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ComponentExecutions,
		m.ComponentDuration,
		m.DataUpdates,
		m.SubscriberErrors,
		m.RegisteredComponent,
	}
}

// RecordExecution records one component execution outcome.
func (m *Metrics) RecordExecution(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.ComponentExecutions.WithLabelValues(status).Inc()
	m.ComponentDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDataUpdate records a delivered data update notification.
func (m *Metrics) RecordDataUpdate() {
	if m == nil {
		return
	}
	m.DataUpdates.Inc()
}

// RecordSubscriberError records a failing data update callback.
func (m *Metrics) RecordSubscriberError() {
	if m == nil {
		return
	}
	m.SubscriberErrors.Inc()
}

// SetRegisteredComponents sets the number of registered components.
func (m *Metrics) SetRegisteredComponents(n int) {
	if m == nil {
		return
	}
	m.RegisteredComponent.Set(float64(n))
}
