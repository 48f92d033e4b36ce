// Package metrics provides observability for the gateway module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks gateway fan-out and quorum behavior. A nil receiver is a
// no-op so tests can pass nil.
type Metrics struct {
	// Per-node call latencies by node and operation
	NodeCallDuration *prometheus.HistogramVec

	// Per-node call errors by node and operation
	NodeCallErrors *prometheus.CounterVec

	// Quorum outcomes: "authenticated", "rejected"
	QuorumOutcomes *prometheus.CounterVec

	// Positive voters disagreeing with the canonical identity
	IdentityConflicts prometheus.Counter

	// Registration outcomes: "stored", "broadcast_failed"
	RegistrationOutcomes *prometheus.CounterVec
}

// New creates a Metrics instance with all gateway metrics registered.
func New() *Metrics {
	return &Metrics{
		NodeCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ciphera_gateway_node_call_duration_seconds",
			Help:    "Duration of verifier node calls by node and operation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"node", "operation"}),

		NodeCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ciphera_gateway_node_call_errors_total",
			Help: "Total verifier node call failures by node and operation",
		}, []string{"node", "operation"}),

		QuorumOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ciphera_gateway_quorum_outcomes_total",
			Help: "Total quorum decisions by outcome",
		}, []string{"outcome"}),

		IdentityConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ciphera_gateway_identity_conflicts_total",
			Help: "Total positive votes naming an identity other than the canonical subject",
		}),

		RegistrationOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ciphera_gateway_registration_outcomes_total",
			Help: "Total registration broadcasts by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveNodeCall records the duration of one verifier node call.
func (m *Metrics) ObserveNodeCall(node, operation string, d time.Duration) {
	if m != nil {
		m.NodeCallDuration.WithLabelValues(node, operation).Observe(d.Seconds())
	}
}

// IncrementNodeError records a failed verifier node call.
func (m *Metrics) IncrementNodeError(node, operation string) {
	if m != nil {
		m.NodeCallErrors.WithLabelValues(node, operation).Inc()
	}
}

// IncrementQuorum records a quorum outcome.
func (m *Metrics) IncrementQuorum(outcome string) {
	if m != nil {
		m.QuorumOutcomes.WithLabelValues(outcome).Inc()
	}
}

// AddIdentityConflicts records positive votes that disagreed with the subject.
func (m *Metrics) AddIdentityConflicts(n int) {
	if m != nil && n > 0 {
		m.IdentityConflicts.Add(float64(n))
	}
}

// IncrementRegistration records a registration broadcast outcome.
func (m *Metrics) IncrementRegistration(outcome string) {
	if m != nil {
		m.RegistrationOutcomes.WithLabelValues(outcome).Inc()
	}
}
