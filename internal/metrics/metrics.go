// Package metrics holds the Prometheus collectors for the off-ramp service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	GatewayRequests *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec
	ApprovalPolls   *prometheus.CounterVec
	WorkflowSteps   *prometheus.CounterVec
	SelectionStates prometheus.Gauge
}

// New creates the collectors under the given namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway calls by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		GatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ApprovalPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "polls_total",
			Help:      "Approval status polls by track and observed status",
		}, []string{"track", "status"}),
		WorkflowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "steps_total",
			Help:      "Provisioning steps by step and outcome",
		}, []string{"step", "outcome"}),
		SelectionStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "selection",
			Name:      "states",
			Help:      "Token selection states held in memory",
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.GatewayRequests,
		m.GatewayDuration,
		m.ApprovalPolls,
		m.WorkflowSteps,
		m.SelectionStates,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveGateway records one gateway call.
func (m *Metrics) ObserveGateway(endpoint string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.GatewayDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// ObservePoll records one approval status read.
func (m *Metrics) ObservePoll(track, status string) {
	if m == nil {
		return
	}
	m.ApprovalPolls.WithLabelValues(track, status).Inc()
}

// ObserveStep records the outcome of a provisioning step.
func (m *Metrics) ObserveStep(step string, err error) {
	if m == nil {
		return
	}
	m.WorkflowSteps.WithLabelValues(step, outcome(err)).Inc()
}

// SetSelectionStates updates the in-memory selection gauge.
func (m *Metrics) SetSelectionStates(n int) {
	if m == nil {
		return
	}
	m.SelectionStates.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
