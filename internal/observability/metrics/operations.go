package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// opCollectors is the operation/duration/error trio every subsystem exposes
type opCollectors struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	errors     *prometheus.CounterVec
}

func newOpCollectors(subsystem string, buckets []float64) opCollectors {
	return opCollectors{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      fmt.Sprintf("Total number of %s operations by outcome", subsystem),
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "faceattend",
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      fmt.Sprintf("Duration of %s operations", subsystem),
			Buckets:   buckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      fmt.Sprintf("Total number of %s errors by type", subsystem),
		}, []string{"operation", "error_type"}),
	}
}

func (c *opCollectors) RecordOperation(operation, status string) {
	c.operations.WithLabelValues(operation, status).Inc()
}

func (c *opCollectors) RecordDuration(operation string, seconds float64) {
	c.durations.WithLabelValues(operation).Observe(seconds)
}

func (c *opCollectors) RecordError(operation, errorType string) {
	c.errors.WithLabelValues(operation, errorType).Inc()
}

func (c *opCollectors) describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.durations.Describe(ch)
	c.errors.Describe(ch)
}

func (c *opCollectors) collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.durations.Collect(ch)
	c.errors.Collect(ch)
}
