// Package metrics provides observability for a verifier node.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the node's register and verify paths. All methods are
// nil-receiver safe so tests can run without a registry.
type Metrics struct {
	MatchDuration      prometheus.Histogram
	MatchOutcomes      *prometheus.CounterVec
	RegisterDuration   prometheus.Histogram
	EnrolledIdentities prometheus.Gauge
}

// New registers and returns the node metric set.
func New() *Metrics {
	return &Metrics{
		MatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ciphera_node_match_duration_seconds",
			Help:    "Duration of local probe matching including embedding extraction",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		MatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ciphera_node_match_outcomes_total",
			Help: "Local match outcomes by result",
		}, []string{"result"}), // result: verified, face_not_detected, no_enrollments, no_match, error

		RegisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ciphera_node_register_duration_seconds",
			Help:    "Duration of enrollment including sample persistence and cache rebuild",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		EnrolledIdentities: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ciphera_node_enrolled_identities",
			Help: "Number of identities in the local enrollment store",
		}),
	}
}

func (m *Metrics) ObserveMatch(result string, d time.Duration) {
	if m != nil {
		m.MatchOutcomes.WithLabelValues(result).Inc()
		m.MatchDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveRegister(d time.Duration, enrolled int) {
	if m != nil {
		m.RegisterDuration.Observe(d.Seconds())
		m.EnrolledIdentities.Set(float64(enrolled))
	}
}
