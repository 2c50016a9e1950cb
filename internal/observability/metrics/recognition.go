package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RecognitionMetrics covers the live recognition loop.
type RecognitionMetrics struct {
	opCollectors
	similarity   prometheus.Histogram
	sessionState *prometheus.GaugeVec
}

// NewRecognitionMetrics creates and registers recognition metrics
func NewRecognitionMetrics(registry *prometheus.Registry) (*RecognitionMetrics, error) {
	m := &RecognitionMetrics{
		opCollectors: newOpCollectors("recognition", prometheus.ExponentialBuckets(0.001, 2, 12)), // 1ms to ~4s
		similarity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "faceattend",
			Subsystem: "recognition",
			Name:      "match_similarity",
			Help:      "Cosine similarity of the best reference match per processed face",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "faceattend",
			Subsystem: "recognition",
			Name:      "session_state",
			Help:      "1 for the current supervisor state, 0 for the others",
		}, []string{"state"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register recognition metrics: %w", err)
	}
	return m, nil
}

// ObserveSimilarity records the best match similarity of one face.
func (m *RecognitionMetrics) ObserveSimilarity(similarity float64) {
	m.similarity.Observe(similarity)
}

// SetState marks state as the active supervisor state.
func (m *RecognitionMetrics) SetState(state string, all []string) {
	for _, s := range all {
		m.sessionState.WithLabelValues(s).Set(0)
	}
	m.sessionState.WithLabelValues(state).Set(1)
}

func (m *RecognitionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.describe(ch)
	m.similarity.Describe(ch)
	m.sessionState.Describe(ch)
}

func (m *RecognitionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collect(ch)
	m.similarity.Collect(ch)
	m.sessionState.Collect(ch)
}
