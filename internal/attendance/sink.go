package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/observability/metrics"
)

// DefaultSecondaryTimeout bounds one delivery to a secondary sink.
const DefaultSecondaryTimeout = 10 * time.Second

// Indicator gives physical feedback for a recorded event, such as flashing
// a camera light.
type Indicator interface {
	Signal(ctx context.Context, ev Event) error
}

type namedSink struct {
	name string
	sink Sink
}

// MultiSink writes to a primary sink synchronously and fans the event out to
// secondary sinks and indicators in the background. Only the primary's
// error is returned; secondary failures are logged.
type MultiSink struct {
	primary    Sink
	secondary  []namedSink
	indicators []Indicator
	timeout    time.Duration
	recorder   metrics.Recorder
	log        logger.Logger

	wg sync.WaitGroup
}

// MultiSinkOption configures a MultiSink.
type MultiSinkOption func(*MultiSink)

// WithSecondary adds a best-effort sink.
func WithSecondary(name string, s Sink) MultiSinkOption {
	return func(m *MultiSink) { m.secondary = append(m.secondary, namedSink{name: name, sink: s}) }
}

// WithIndicator adds a feedback hook run after the primary write.
func WithIndicator(ind Indicator) MultiSinkOption {
	return func(m *MultiSink) { m.indicators = append(m.indicators, ind) }
}

// WithSecondaryTimeout overrides DefaultSecondaryTimeout.
func WithSecondaryTimeout(d time.Duration) MultiSinkOption {
	return func(m *MultiSink) { m.timeout = d }
}

// WithSinkRecorder records per-sink delivery results.
func WithSinkRecorder(r metrics.Recorder) MultiSinkOption {
	return func(m *MultiSink) { m.recorder = r }
}

// NewMultiSink returns a fan-out sink around primary.
func NewMultiSink(primary Sink, opts ...MultiSinkOption) *MultiSink {
	m := &MultiSink{
		primary:  primary,
		timeout:  DefaultSecondaryTimeout,
		recorder: metrics.NopRecorder{},
		log:      GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record writes ev to the primary sink and, on success, dispatches it to the
// secondary sinks and indicators without waiting for them.
func (m *MultiSink) Record(ctx context.Context, ev Event) error {
	if err := m.primary.Record(ctx, ev); err != nil {
		m.recorder.RecordOperation(metrics.OpAttendanceSink, metrics.StatusError)
		return err
	}
	m.recorder.RecordOperation(metrics.OpAttendanceSink, metrics.StatusSuccess)

	base := context.WithoutCancel(ctx)
	for _, s := range m.secondary {
		m.dispatch(base, s.name, func(ctx context.Context) error { return s.sink.Record(ctx, ev) }, ev)
	}
	for _, ind := range m.indicators {
		m.dispatch(base, "indicator", func(ctx context.Context) error { return ind.Signal(ctx, ev) }, ev)
	}
	return nil
}

func (m *MultiSink) dispatch(base context.Context, name string, fn func(context.Context) error, ev Event) {
	m.wg.Go(func() {
		ctx, cancel := context.WithTimeout(base, m.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			m.recorder.RecordError(metrics.OpAttendanceSink, name)
			m.log.Warn("secondary attendance sink failed",
				logger.String("sink", name),
				logger.String("event_id", ev.ID),
				logger.Error(err))
		}
	})
}

// Wait blocks until every background delivery has finished.
func (m *MultiSink) Wait() {
	m.wg.Wait()
}
