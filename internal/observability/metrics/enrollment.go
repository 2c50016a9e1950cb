package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EnrollmentMetrics covers template building and the reference store.
type EnrollmentMetrics struct {
	opCollectors
	samples    prometheus.Histogram
	identities prometheus.Gauge
	embeddings prometheus.Gauge
}

// NewEnrollmentMetrics creates and registers enrollment metrics
func NewEnrollmentMetrics(registry *prometheus.Registry) (*EnrollmentMetrics, error) {
	m := &EnrollmentMetrics{
		opCollectors: newOpCollectors("enrollment", prometheus.ExponentialBuckets(0.01, 2, 12)),
		samples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faceattend",
			Subsystem: "enrollment",
			Name:      "valid_samples",
			Help:      "Valid face samples found per enrollment attempt",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		}),
		identities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faceattend",
			Subsystem: "store",
			Name:      "identities",
			Help:      "Number of enrolled identities",
		}),
		embeddings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faceattend",
			Subsystem: "store",
			Name:      "embeddings",
			Help:      "Number of rows in the reference matrix",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register enrollment metrics: %w", err)
	}
	return m, nil
}

// ObserveSamples records how many usable faces an enrollment produced.
func (m *EnrollmentMetrics) ObserveSamples(n int) {
	m.samples.Observe(float64(n))
}

// SetStoreSize publishes the reference store size after a rebuild.
func (m *EnrollmentMetrics) SetStoreSize(identities, embeddings int) {
	m.identities.Set(float64(identities))
	m.embeddings.Set(float64(embeddings))
}

func (m *EnrollmentMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.describe(ch)
	m.samples.Describe(ch)
	m.identities.Describe(ch)
	m.embeddings.Describe(ch)
}

func (m *EnrollmentMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collect(ch)
	m.samples.Collect(ch)
	m.identities.Collect(ch)
	m.embeddings.Collect(ch)
}
