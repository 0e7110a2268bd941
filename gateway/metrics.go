package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/semwidgets/metric"
)

type gatewayMetrics struct {
	requests *prometheus.CounterVec
	clients  prometheus.Gauge
	pushes   *prometheus.CounterVec
}

func newGatewayMetrics(registry *metric.MetricsRegistry) (*gatewayMetrics, error) {
	if registry == nil {
		return nil, nil
	}
	m := &gatewayMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "ws_clients",
			Help:      "Connected websocket clients",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "gateway",
			Name:      "ws_pushes_total",
			Help:      "Data updates pushed to websocket clients by outcome",
		}, []string{"outcome"}),
	}
	if err := registry.RegisterCounterVec("gateway", "requests_total", m.requests); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("gateway", "ws_clients", m.clients); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("gateway", "ws_pushes_total", m.pushes); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *gatewayMetrics) recordRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *gatewayMetrics) setClients(n int) {
	if m == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *gatewayMetrics) recordPush(outcome string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(outcome).Inc()
}
