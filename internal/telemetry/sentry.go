// Package telemetry wires optional Sentry error reporting. It is opt-in and
// every event is scrubbed before it leaves the process.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/privacy"
)

// FlushTimeout bounds how long shutdown waits for queued events.
const FlushTimeout = 2 * time.Second

// GetLogger returns the telemetry module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}

// InitSentry initializes the SDK and installs the errors package reporter
// when sentry is enabled. The returned func flushes pending events and is
// safe to call when telemetry is disabled.
func InitSentry(settings *conf.Settings) (func(), error) {
	if !settings.Sentry.Enabled || settings.Sentry.DSN == "" {
		GetLogger().Debug("sentry telemetry is disabled")
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("faceattend@%s", settings.Version),
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return func() {}, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry-init").
			Build()
	}

	errors.SetPrivacyScrubber(privacy.ScrubMessage)
	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	GetLogger().Info("sentry telemetry enabled", logger.String("release", settings.Version))
	return func() {
		errors.SetTelemetryReporter(nil)
		sentry.Flush(FlushTimeout)
	}, nil
}

// beforeSend drops identifying request and user data and scrubs URLs from
// the message and exception values.
func beforeSend(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil {
		return nil
	}
	event.ServerName = ""
	event.User = sentry.User{}
	event.Request = nil
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	for _, b := range event.Breadcrumbs {
		if b != nil {
			b.Message = privacy.ScrubMessage(b.Message)
		}
	}
	return event
}
