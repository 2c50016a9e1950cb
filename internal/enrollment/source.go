package enrollment

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/tphakala/faceattend/internal/capture"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

// DefaultWatchInterval is how often a shared feed checks that recognition is
// still running.
const DefaultWatchInterval = 250 * time.Millisecond

// SharedCamera is a running recognition loop that can hand out its frames.
type SharedCamera interface {
	Running() bool
	SetFrameTap(fn func(image.Image))
}

// CameraSource feeds live sessions. While recognition runs it taps the
// recognition camera; otherwise it opens a dedicated camera for the session.
type CameraSource struct {
	shared        SharedCamera
	newGrabber    func() (capture.Grabber, error)
	name          string
	openTimeout   time.Duration
	closeTimeout  time.Duration
	idleSleep     time.Duration
	watchInterval time.Duration
}

// NewCameraSource returns a source. shared may be nil.
func NewCameraSource(shared SharedCamera, newGrabber func() (capture.Grabber, error), name string, openTimeout, closeTimeout time.Duration) *CameraSource {
	return &CameraSource{
		shared:        shared,
		newGrabber:    newGrabber,
		name:          name,
		openTimeout:   openTimeout,
		closeTimeout:  closeTimeout,
		idleSleep:     10 * time.Millisecond,
		watchInterval: DefaultWatchInterval,
	}
}

// Attach implements FrameSource.
func (s *CameraSource) Attach(ctx context.Context, fn func(image.Image)) (func(), <-chan error, error) {
	if s.shared != nil && s.shared.Running() {
		return s.attachShared(ctx, fn)
	}

	g, err := s.newGrabber()
	if err != nil {
		return nil, nil, errors.New(capture.ErrCameraUnavailable).
			Component("enrollment").
			Category(errors.CategoryCamera).
			Context("cause", err.Error()).
			Build()
	}

	cam := capture.NewCamera(g, capture.WithName(s.name), capture.WithCloseTimeout(s.closeTimeout))
	openCtx := ctx
	if s.openTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, s.openTimeout)
		defer cancel()
	}
	if err := cam.Open(openCtx); err != nil {
		return nil, nil, err
	}

	pollCtx, stop := context.WithCancel(ctx)
	lost := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.poll(pollCtx, cam, fn); err != nil {
			lost <- err
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
			_ = cam.Close()
		})
	}, lost, nil
}

// attachShared installs fn as the recognition frame tap and watches that
// recognition keeps running.
func (s *CameraSource) attachShared(ctx context.Context, fn func(image.Image)) (func(), <-chan error, error) {
	s.shared.SetFrameTap(fn)
	GetLogger().Debug("live enrollment uses the recognition camera")

	watchCtx, stop := context.WithCancel(ctx)
	lost := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				if !s.shared.Running() {
					GetLogger().Warn("recognition stopped during live enrollment")
					lost <- errors.New(ErrSourceLost).
						Component("enrollment").
						Category(errors.CategoryCamera).
						Context("reason", "recognition stopped").
						Build()
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			<-done
			s.shared.SetFrameTap(nil)
		})
	}, lost, nil
}

// poll forwards new frames to fn until ctx ends or the reader stops. It
// returns an error only for the latter.
func (s *CameraSource) poll(ctx context.Context, cam *capture.Camera, fn func(image.Image)) error {
	var lastSeq uint64
	for ctx.Err() == nil {
		frame, ok := cam.ReadFrame()
		if !ok {
			if ctx.Err() != nil {
				return nil
			}
			cause := cam.Err()
			GetLogger().Warn("live enrollment camera stopped", logger.Error(cause))
			b := errors.New(ErrSourceLost).
				Component("enrollment").
				Category(errors.CategoryCamera).
				Context("source", s.name)
			if cause != nil {
				b = b.Context("cause", cause.Error())
			}
			return b.Build()
		}
		if frame.Seq == lastSeq {
			timer := time.NewTimer(s.idleSleep)
			select {
			case <-ctx.Done():
			case <-timer.C:
			}
			timer.Stop()
			continue
		}
		lastSeq = frame.Seq
		fn(frame.Image)
	}
	return nil
}
