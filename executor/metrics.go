package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semwidgets/datasource"
	"github.com/c360/semwidgets/metric"
)

// Metrics holds Prometheus metrics for data item execution
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers execution metrics. A nil registry returns nil
// metrics, which every recording method tolerates.
func NewMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "executor",
			Name:      "items_total",
			Help:      "Data item executions by item type and status",
		}, []string{"type", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metric.Namespace,
			Subsystem: "executor",
			Name:      "duration_seconds",
			Help:      "Data item execution duration",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"type"}),
	}

	if err := registry.RegisterCounterVec("executor", "items_total", m.executions); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("executor", "duration_seconds", m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) record(t datasource.ItemType, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.executions.WithLabelValues(string(t), status).Inc()
	m.duration.WithLabelValues(string(t)).Observe(d.Seconds())
}
