package flow

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semwidgets/metric"
)

type flowMetrics struct {
	scheduled prometheus.Counter
	executed  *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

func newFlowMetrics(registry *metric.MetricsRegistry) (*flowMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &flowMetrics{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "flow",
			Name:      "scheduled_total",
			Help:      "Debounced executions scheduled or rescheduled",
		}),
		executed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "flow",
			Name:      "executions_total",
			Help:      "Data source executions started by the flow, by outcome",
		}, []string{"status"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "flow",
			Name:      "skipped_total",
			Help:      "Executions not started, by reason",
		}, []string{"reason"}),
	}
	if err := registry.RegisterCounter("flow", "scheduled_total", m.scheduled); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("flow", "executions_total", m.executed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("flow", "skipped_total", m.skipped); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *flowMetrics) recordScheduled() {
	if m != nil {
		m.scheduled.Inc()
	}
}

func (m *flowMetrics) recordExecuted(success bool) {
	if m == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.executed.WithLabelValues(status).Inc()
}

func (m *flowMetrics) recordSkipped(reason string) {
	if m != nil {
		m.skipped.WithLabelValues(reason).Inc()
	}
}
