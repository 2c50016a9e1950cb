// Package metrics provides Prometheus collectors for the capture, recognition,
// enrollment and publishing paths.
package metrics

// Recorder is the minimal metrics surface components depend on, so they can
// be tested without a registry.
type Recorder interface {
	// RecordOperation records an operation outcome, e.g. ("commit", "success").
	RecordOperation(operation, status string)

	// RecordDuration records how long an operation took in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string)     {}

var _ Recorder = NopRecorder{}
