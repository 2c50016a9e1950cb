package enrollment

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/observability/metrics"
	"github.com/tphakala/faceattend/internal/vision"
)

// Mode is the state of a live enrollment session.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeCapturing Mode = "capturing"
	ModeSaving    Mode = "saving"
	ModeDone      Mode = "done"
)

// DefaultTotalFrames is how many accepted frames a live session collects.
const DefaultTotalFrames = 30

// Progress is the externally visible state of the live session.
type Progress struct {
	SessionID    string  `json:"session_id,omitempty"`
	EmployeeID   string  `json:"employee_id,omitempty"`
	Recording    bool    `json:"recording"`
	Mode         Mode    `json:"mode"`
	Count        int     `json:"count"`
	Total        int     `json:"total"`
	Message      string  `json:"message"`
	FaceDetected bool    `json:"face_detected"`
	IsBlurry     bool    `json:"is_blurry"`
	Error        string  `json:"error,omitempty"`
	Result       *Result `json:"result,omitempty"`
}

func (p Progress) active() bool {
	return p.Mode == ModeCapturing || p.Mode == ModeSaving
}

// FrameSource feeds camera frames to fn until the returned detach function
// is called. lost receives at most one error if the feed stops on its own;
// a nil channel means the feed never does.
type FrameSource interface {
	Attach(ctx context.Context, fn func(image.Image)) (detach func(), lost <-chan error, err error)
}

// LiveConfig tunes a live session.
type LiveConfig struct {
	TotalFrames     int
	BlurThreshold   float64
	CaptureInterval time.Duration
}

// LiveSession runs at most one capture session at a time. Frames offered by
// the source go through a one-slot mailbox to the session goroutine, which
// gates them, and once enough frames are accepted registers them.
type LiveSession struct {
	registrar *Registrar
	detector  vision.Detector
	meter     vision.SharpnessMeter
	source    FrameSource
	cfg       LiveConfig
	recorder  metrics.Recorder
	now       func() time.Time
	log       logger.Logger

	mu       sync.Mutex
	progress Progress
	cancel   context.CancelFunc
	done     chan struct{}
}

// LiveOption configures a LiveSession.
type LiveOption func(*LiveSession)

// WithLiveRecorder records accepted and rejected live frames.
func WithLiveRecorder(r metrics.Recorder) LiveOption {
	return func(l *LiveSession) { l.recorder = r }
}

// WithLiveClock replaces time.Now for the capture throttle.
func WithLiveClock(now func() time.Time) LiveOption {
	return func(l *LiveSession) { l.now = now }
}

// NewLiveSession returns an idle session manager.
func NewLiveSession(reg *Registrar, det vision.Detector, meter vision.SharpnessMeter, source FrameSource, cfg LiveConfig, opts ...LiveOption) *LiveSession {
	if cfg.TotalFrames <= 0 {
		cfg.TotalFrames = DefaultTotalFrames
	}
	l := &LiveSession{
		registrar: reg,
		detector:  det,
		meter:     meter,
		source:    source,
		cfg:       cfg,
		recorder:  metrics.NopRecorder{},
		now:       time.Now,
		log:       GetLogger(),
		progress:  Progress{Mode: ModeIdle, Total: cfg.TotalFrames},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Progress returns a snapshot of the session state.
func (l *LiveSession) Progress() Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.progress
	if p.Result != nil {
		r := *p.Result
		p.Result = &r
	}
	return p
}

// Start begins capturing for an existing identity. The session runs until
// it has registered the frames, fails or is cancelled; ctx only contributes
// values.
func (l *LiveSession) Start(ctx context.Context, employeeID string) (Progress, error) {
	ident, err := l.registrar.store.Identity(employeeID)
	if err != nil {
		return Progress{}, err
	}

	l.mu.Lock()
	if l.progress.active() {
		l.mu.Unlock()
		return Progress{}, errors.New(ErrSessionActive).
			Component("enrollment").
			Category(errors.CategoryConflict).
			Context("active_employee_id", l.progress.EmployeeID).
			Build()
	}
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	l.progress = Progress{
		SessionID:  uuid.NewString(),
		EmployeeID: ident.ID,
		Recording:  true,
		Mode:       ModeCapturing,
		Total:      l.cfg.TotalFrames,
		Message:    "waiting for a face",
	}
	started := l.progress
	l.mu.Unlock()

	frames := make(chan image.Image, 1)
	detach, lost, err := l.source.Attach(sessionCtx, func(img image.Image) { offer(frames, img) })
	if err != nil {
		cancel()
		close(done)
		l.update(func(p *Progress) {
			p.Recording = false
			p.Mode = ModeDone
			p.Error = err.Error()
			p.Message = "camera unavailable"
		})
		return Progress{}, err
	}

	l.log.Info("live enrollment started",
		logger.String("employee_id", ident.ID),
		logger.String("session_id", started.SessionID))
	go l.run(sessionCtx, ident.ID, ident.Name, ident.Department, frames, lost, detach, done)
	return started, nil
}

// offer replaces any pending frame with img without blocking.
func offer(ch chan image.Image, img image.Image) {
	select {
	case ch <- img:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- img:
	default:
	}
}

func (l *LiveSession) run(ctx context.Context, id, name, department string, frames <-chan image.Image, lost <-chan error, detach func(), done chan struct{}) {
	defer close(done)

	gate := NewGate(l.detector, l.meter, l.cfg.BlurThreshold, l.cfg.CaptureInterval)
	var captured []image.Image

	for len(captured) < l.cfg.TotalFrames {
		select {
		case <-ctx.Done():
			detach()
			l.finishCancelled()
			return
		case err := <-lost:
			detach()
			l.finishLost(err, len(captured))
			return
		case img := <-frames:
			res, err := gate.Evaluate(ctx, img, l.now())
			if err != nil {
				l.log.Debug("live frame evaluation failed", logger.Error(err))
				continue
			}
			if res.Accepted {
				captured = append(captured, img)
				l.recorder.RecordOperation(metrics.OpLiveCapture, "accepted")
			}
			count := len(captured)
			l.update(func(p *Progress) {
				p.FaceDetected = res.FaceDetected()
				p.IsBlurry = res.Blurry
				p.Count = count
				switch {
				case res.Accepted:
					p.Message = fmt.Sprintf("captured %d/%d frames, turn your head slowly left and right", count, p.Total)
				case !res.FaceDetected():
					p.Message = "no face detected, move into the camera view"
				case res.Blurry:
					p.Message = fmt.Sprintf("image is blurry (variance %.1f), hold still in good light", res.Sharpness)
				}
			})
		}
	}
	detach()

	l.update(func(p *Progress) {
		p.Mode = ModeSaving
		p.Message = "processing and saving"
	})

	result, err := l.registrar.RegisterFromFrames(ctx, id, name, department, captured)
	if ctx.Err() != nil {
		l.finishCancelled()
		return
	}
	l.update(func(p *Progress) {
		p.Recording = false
		p.Mode = ModeDone
		if err != nil {
			p.Error = err.Error()
			p.Message = "error: " + err.Error()
			return
		}
		p.Result = &result
		p.Message = fmt.Sprintf("done, registered %d photos", result.Stored)
	})
}

func (l *LiveSession) finishCancelled() {
	l.update(func(p *Progress) {
		p.Recording = false
		p.Mode = ModeIdle
		p.Message = "cancelled"
	})
	l.log.Info("live enrollment cancelled")
}

// finishLost ends a session whose camera feed stopped before enough frames
// were captured. Nothing is registered.
func (l *LiveSession) finishLost(err error, count int) {
	l.recorder.RecordOperation(metrics.OpLiveCapture, "lost")
	l.update(func(p *Progress) {
		p.Recording = false
		p.Mode = ModeDone
		p.Count = count
		p.Error = err.Error()
		p.Message = "camera stopped, start the capture again"
	})
	l.log.Warn("live enrollment stopped, camera feed lost",
		logger.Int("captured", count),
		logger.Error(err))
}

func (l *LiveSession) update(fn func(*Progress)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.progress)
}

// Cancel stops the active session, waits for it and returns to idle.
func (l *LiveSession) Cancel() error {
	l.mu.Lock()
	if !l.progress.active() {
		l.mu.Unlock()
		return errors.New(ErrNoSession).
			Component("enrollment").
			Category(errors.CategoryState).
			Build()
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Close cancels any active session and waits for it.
func (l *LiveSession) Close() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
