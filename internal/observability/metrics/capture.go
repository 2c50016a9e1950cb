package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CaptureMetrics covers the camera reader: frames grabbed or dropped, open
// latency and reconnects.
type CaptureMetrics struct {
	opCollectors
	readerRunning prometheus.Gauge
}

// NewCaptureMetrics creates and registers capture metrics
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{
		opCollectors: newOpCollectors("capture", prometheus.ExponentialBuckets(0.01, 2, 12)), // 10ms to ~20s
		readerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "faceattend",
			Subsystem: "capture",
			Name:      "reader_running",
			Help:      "1 while a camera reader goroutine is active",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

// SetReaderRunning flips the reader gauge.
func (m *CaptureMetrics) SetReaderRunning(running bool) {
	if running {
		m.readerRunning.Set(1)
		return
	}
	m.readerRunning.Set(0)
}

func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.describe(ch)
	m.readerRunning.Describe(ch)
}

func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	m.collect(ch)
	m.readerRunning.Collect(ch)
}
