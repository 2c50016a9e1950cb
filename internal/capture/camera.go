package capture

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/observability/metrics"
)

// DefaultCloseTimeout bounds how long Close waits for the reader.
const DefaultCloseTimeout = time.Second

// Frame is the content of the latest-frame slot.
type Frame struct {
	Image image.Image
	Seq   uint64 // increases by one per grabbed frame
	At    time.Time
}

// Camera owns a Grabber and its reader goroutine.
type Camera struct {
	grabber      Grabber
	name         string
	closeTimeout time.Duration
	recorder     metrics.Recorder
	log          logger.Logger

	mu      sync.Mutex
	latest  Frame
	ok      bool
	readErr error

	first     chan struct{}
	firstOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	started   bool
}

// Option configures a Camera.
type Option func(*Camera)

// WithName sets the source name used in logs. Pass a sanitized URL.
func WithName(name string) Option {
	return func(c *Camera) { c.name = name }
}

// WithCloseTimeout overrides DefaultCloseTimeout.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Camera) { c.closeTimeout = d }
}

// WithRecorder records frame reads.
func WithRecorder(r metrics.Recorder) Option {
	return func(c *Camera) { c.recorder = r }
}

// NewCamera wraps g. Call Open before reading.
func NewCamera(g Grabber, opts ...Option) *Camera {
	c := &Camera{
		grabber:      g,
		name:         "camera",
		closeTimeout: DefaultCloseTimeout,
		recorder:     metrics.NopRecorder{},
		first:        make(chan struct{}),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = GetLogger().With(logger.String("source", c.name))
	return c
}

// Open opens the grabber, starts the reader and waits for the first frame.
// Callers that need a bound on the wait pass a context with a deadline.
func (c *Camera) Open(ctx context.Context) error {
	start := time.Now()
	if err := c.grabber.Open(ctx); err != nil {
		c.recorder.RecordError(metrics.OpFrameRead, "open")
		return errors.New(ErrCameraUnavailable).
			Component("capture").
			Category(errors.CategoryCamera).
			Context("source", c.name).
			Context("cause", err.Error()).
			Build()
	}

	c.started = true
	go c.run()

	select {
	case <-c.first:
	case <-ctx.Done():
		_ = c.Close()
		return errors.New(ctx.Err()).
			Component("capture").
			Category(errors.CategoryTimeout).
			Context("source", c.name).
			Build()
	}

	c.mu.Lock()
	ok, readErr := c.ok, c.readErr
	c.mu.Unlock()
	if !ok {
		_ = c.Close()
		b := errors.New(ErrCameraUnavailable).
			Component("capture").
			Category(errors.CategoryCamera).
			Context("source", c.name)
		if readErr != nil {
			b = b.Context("cause", readErr.Error())
		}
		return b.Build()
	}

	c.recorder.RecordDuration("open", time.Since(start).Seconds())
	c.log.Info("camera opened", logger.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *Camera) run() {
	defer close(c.done)
	defer c.firstOnce.Do(func() { close(c.first) })
	if g, ok := c.recorder.(interface{ SetReaderRunning(bool) }); ok {
		g.SetReaderRunning(true)
		defer g.SetReaderRunning(false)
	}

	for {
		select {
		case <-c.stop:
			c.setStopped(nil)
			return
		default:
		}

		img, err := c.grabber.Grab()
		if err != nil {
			c.setStopped(err)
			c.recorder.RecordOperation(metrics.OpFrameRead, metrics.StatusError)
			select {
			case <-c.stop:
			default:
				c.log.Warn("frame reader stopped", logger.Error(err))
			}
			return
		}

		c.mu.Lock()
		c.latest = Frame{Image: img, Seq: c.latest.Seq + 1, At: time.Now()}
		c.ok = true
		c.mu.Unlock()
		c.firstOnce.Do(func() { close(c.first) })
		c.recorder.RecordOperation(metrics.OpFrameRead, metrics.StatusSuccess)
	}
}

func (c *Camera) setStopped(err error) {
	c.mu.Lock()
	c.ok = false
	c.readErr = err
	c.mu.Unlock()
}

// ReadFrame returns the latest frame without blocking. ok is false once the
// reader has stopped.
func (c *Camera) ReadFrame() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest, c.ok
}

// Err returns the error that stopped the reader, if any.
func (c *Camera) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

// Close stops the reader, waits for it up to the close timeout and releases
// the grabber. Safe to call more than once.
func (c *Camera) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.stop)
		if !c.started {
			err = c.grabber.Close()
			return
		}

		joined := c.wait()
		err = c.grabber.Close()
		if !joined && !c.wait() {
			c.log.Warn("frame reader did not stop in time", logger.Duration("timeout", c.closeTimeout))
		}
	})
	return err
}

func (c *Camera) wait() bool {
	timer := time.NewTimer(c.closeTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return true
	case <-timer.C:
		return false
	}
}

// With opens a camera on g, runs fn and closes the camera on every exit
// path, panics included.
func With(ctx context.Context, g Grabber, fn func(*Camera) error, opts ...Option) error {
	cam := NewCamera(g, opts...)
	if err := cam.Open(ctx); err != nil {
		return err
	}
	defer func() { _ = cam.Close() }()
	return fn(cam)
}
