// Package observability wires the Prometheus collectors of every component
// into one registry and exposes it over HTTP.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tphakala/faceattend/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry    *prometheus.Registry
	Capture     *metrics.CaptureMetrics
	Recognition *metrics.RecognitionMetrics
	Enrollment  *metrics.EnrollmentMetrics
	MQTT        *metrics.MQTTMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	captureMetrics, err := metrics.NewCaptureMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture metrics: %w", err)
	}

	recognitionMetrics, err := metrics.NewRecognitionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition metrics: %w", err)
	}

	enrollmentMetrics, err := metrics.NewEnrollmentMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create enrollment metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry:    registry,
		Capture:     captureMetrics,
		Recognition: recognitionMetrics,
		Enrollment:  enrollmentMetrics,
		MQTT:        mqttMetrics,
	}, nil
}

// Handler returns the /metrics handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}
