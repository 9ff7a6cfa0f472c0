// ABOUTME: Prometheus metrics for the gateway
// ABOUTME: Tracks protocol requests, active sessions, and connector failures

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts protocol requests by transport, method, and outcome.
	RequestsTotal *prometheus.CounterVec

	// ActiveSessions tracks live sessions per transport.
	ActiveSessions *prometheus.GaugeVec

	// ConnectorErrorsTotal counts connector failures by type and operation.
	ConnectorErrorsTotal *prometheus.CounterVec
}

// New creates a metric set registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sage_gateway",
			Name:      "requests_total",
			Help:      "Protocol requests handled, by transport, method, and outcome.",
		}, []string{"transport", "method", "outcome"}),
		ActiveSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sage_gateway",
			Name:      "active_sessions",
			Help:      "Currently active client sessions per transport.",
		}, []string{"transport"}),
		ConnectorErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sage_gateway",
			Name:      "connector_errors_total",
			Help:      "Connector operation failures, by connector type and operation.",
		}, []string{"connector_type", "operation"}),
	}
	reg.MustRegister(m.RequestsTotal, m.ActiveSessions, m.ConnectorErrorsTotal)
	return m
}

// ObserveRequest records one handled request. Nil-safe so callers can run
// without metrics wired.
func (m *Metrics) ObserveRequest(transport, method, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(transport, method, outcome).Inc()
}

// SessionOpened and SessionClosed adjust the per-transport session gauge.
func (m *Metrics) SessionOpened(transport string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(transport).Inc()
}

func (m *Metrics) SessionClosed(transport string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(transport).Dec()
}

// ObserveConnectorError records a connector operation failure.
func (m *Metrics) ObserveConnectorError(connectorType, operation string) {
	if m == nil {
		return
	}
	m.ConnectorErrorsTotal.WithLabelValues(connectorType, operation).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
