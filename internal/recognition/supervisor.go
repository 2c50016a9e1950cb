package recognition

import (
	"context"
	"fmt"
	"image"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/capture"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/observability/metrics"
)

// SessionState is the lifecycle state of the supervisor.
type SessionState int

const (
	// StateIdle means Run has not been called yet.
	StateIdle SessionState = iota
	// StateConnecting means a camera session is being opened.
	StateConnecting
	// StateRunning means frames are flowing through the pipeline.
	StateRunning
	// StateBackoff means the supervisor waits before a fresh session.
	StateBackoff
	// StateStopped is terminal.
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var allStates = []string{
	StateIdle.String(),
	StateConnecting.String(),
	StateRunning.String(),
	StateBackoff.String(),
	StateStopped.String(),
}

// StateTransition records one state change.
type StateTransition struct {
	From      SessionState `json:"-"`
	To        SessionState `json:"-"`
	Timestamp time.Time    `json:"timestamp"`
	Reason    string       `json:"reason"`
}

const maxStateHistory = 100

// GrabberFactory creates a fresh grabber for every session.
type GrabberFactory func() (capture.Grabber, error)

// FrameTap receives every new camera frame before frame skipping. It runs on
// the recognition goroutine and must not block.
type FrameTap = func(image.Image)

// SupervisorConfig holds the session and debounce settings.
type SupervisorConfig struct {
	SourceName      string // sanitized source name for logs
	ConfirmFrames   int
	Cooldown        time.Duration
	MaxReadFailures int
	RestartBackoff  time.Duration
	OpenTimeout     time.Duration
	CloseTimeout    time.Duration
	IdleSleep       time.Duration
	CycleSleep      time.Duration
}

// Result summarizes the last processed frame.
type Result struct {
	Kind       string    `json:"kind"`
	Action     string    `json:"action"`
	IdentityID string    `json:"identity_id,omitempty"`
	Similarity float64   `json:"similarity"`
	At         time.Time `json:"at"`
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State       string     `json:"state"`
	Sessions    int        `json:"sessions"`
	Restarts    int        `json:"restarts"`
	Commits     int        `json:"commits"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	LastResult  *Result    `json:"last_result,omitempty"`
}

// Supervisor runs recognition sessions against one camera source. Each
// session opens a camera, feeds frames to the pipeline and commits debounced
// matches. When a session fails it is torn down and a fresh one starts after
// RestartBackoff. Camera faults never end Run; only the context does.
type Supervisor struct {
	cfg             SupervisorConfig
	newGrabber      GrabberFactory
	pipeline        *Pipeline
	refs            References
	sink            attendance.Sink
	recorder        metrics.Recorder
	captureRecorder metrics.Recorder
	log             logger.Logger
	now             func() time.Time

	tap atomic.Pointer[FrameTap]

	// phase is owned by the Run goroutine and names the step a recovered
	// panic happened in.
	phase string

	mu         sync.Mutex
	state      SessionState
	history    []StateTransition
	sessions   int
	restarts   int
	commits    int
	lastErr    error
	lastErrAt  time.Time
	lastResult *Result
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithRecorder records cycle, commit and state metrics.
func WithRecorder(r metrics.Recorder) SupervisorOption {
	return func(s *Supervisor) { s.recorder = r }
}

// WithCaptureRecorder records frame reads of the sessions' cameras.
func WithCaptureRecorder(r metrics.Recorder) SupervisorOption {
	return func(s *Supervisor) { s.captureRecorder = r }
}

// WithClock replaces time.Now for debounce decisions.
func WithClock(now func() time.Time) SupervisorOption {
	return func(s *Supervisor) { s.now = now }
}

// NewSupervisor wires a supervisor. sink receives every commit.
func NewSupervisor(cfg SupervisorConfig, newGrabber GrabberFactory, p *Pipeline, refs References, sink attendance.Sink, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		cfg:             cfg,
		newGrabber:      newGrabber,
		pipeline:        p,
		refs:            refs,
		sink:            sink,
		recorder:        metrics.NopRecorder{},
		captureRecorder: metrics.NopRecorder{},
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = GetLogger().With(logger.String("source", cfg.SourceName))
	return s
}

// SetFrameTap installs fn as the frame tap. nil removes it.
func (s *Supervisor) SetFrameTap(fn FrameTap) {
	if fn == nil {
		s.tap.Store(nil)
		return
	}
	s.tap.Store(&fn)
}

// State returns the current state.
func (s *Supervisor) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns the recent state transitions, oldest first.
func (s *Supervisor) History() []StateTransition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Status returns counters and the last result.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:    s.state.String(),
		Sessions: s.sessions,
		Restarts: s.restarts,
		Commits:  s.commits,
	}
	if s.lastErr != nil {
		at := s.lastErrAt
		st.LastError = s.lastErr.Error()
		st.LastErrorAt = &at
	}
	if s.lastResult != nil {
		r := *s.lastResult
		st.LastResult = &r
	}
	return st
}

// Run supervises sessions until ctx is done. It returns after the current
// session has closed its camera.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.transition(StateStopped, "context done")

	for ctx.Err() == nil {
		err := s.runSession(ctx)
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.restarts++
		restarts := s.restarts
		if err != nil {
			s.lastErr, s.lastErrAt = err, time.Now()
		}
		s.mu.Unlock()

		switch {
		case err == nil:
		case errors.IsTransient(err):
			s.log.Warn("recognition session ended",
				logger.Error(err),
				logger.Int("restart", restarts))
		default:
			s.log.Error("recognition session failed",
				logger.Error(err),
				logger.String("category", string(errors.CategoryOf(err))),
				logger.Int("restart", restarts))
		}
		s.transition(StateBackoff, fmt.Sprintf("restart #%d in %s", restarts, s.cfg.RestartBackoff))
		if !sleepCtx(ctx, s.cfg.RestartBackoff) {
			return
		}
		s.recorder.RecordOperation(metrics.OpReconnect, metrics.StatusSuccess)
	}
}

func (s *Supervisor) runSession(ctx context.Context) (err error) {
	s.mu.Lock()
	s.sessions++
	n := s.sessions
	s.mu.Unlock()

	s.phase = "open"
	s.transition(StateConnecting, fmt.Sprintf("session #%d", n))

	defer func() {
		if r := recover(); r != nil {
			at := time.Now()
			s.log.Error("recognition session panicked",
				logger.String("phase", s.phase),
				logger.Time("at", at),
				logger.Any("panic", r))
			err = errors.Newf("recognition session panic: %v", r).
				Component("recognition").
				Category(errors.CategorySystem).
				Context("phase", s.phase).
				Context("at", at.Format(time.RFC3339)).
				Context("stack", string(debug.Stack())).
				Build()
		}
	}()

	g, err := s.newGrabber()
	if err != nil {
		return errors.New(capture.ErrCameraUnavailable).
			Component("recognition").
			Category(errors.CategoryCamera).
			Context("cause", err.Error()).
			Build()
	}

	openCtx := ctx
	if s.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, s.cfg.OpenTimeout)
		defer cancel()
	}

	return capture.With(openCtx, g, func(cam *capture.Camera) error {
		s.transition(StateRunning, "first frame received")
		return s.loop(ctx, cam)
	},
		capture.WithName(s.cfg.SourceName),
		capture.WithCloseTimeout(s.cfg.CloseTimeout),
		capture.WithRecorder(s.captureRecorder))
}

// loop polls the camera until ctx is done or the session fails. The debounce
// state lives only as long as this call.
func (s *Supervisor) loop(ctx context.Context, cam *capture.Camera) error {
	state := NewDebounceState(s.cfg.ConfirmFrames, s.cfg.Cooldown)
	s.pipeline.Reset()

	var lastSeq uint64
	failures := 0
	for ctx.Err() == nil {
		s.phase = "read"
		frame, ok := cam.ReadFrame()
		if !ok {
			failures++
			if failures > s.cfg.MaxReadFailures {
				b := errors.New(capture.ErrTransientRead).
					Component("recognition").
					Category(errors.CategoryCamera).
					Context("consecutive_failures", failures)
				if rerr := cam.Err(); rerr != nil {
					b = b.Context("cause", rerr.Error())
				}
				return b.Build()
			}
			sleepCtx(ctx, s.cfg.IdleSleep)
			continue
		}
		failures = 0

		if frame.Seq == lastSeq {
			sleepCtx(ctx, s.cfg.IdleSleep)
			continue
		}
		lastSeq = frame.Seq

		if tap := s.tap.Load(); tap != nil {
			s.phase = "tap"
			(*tap)(frame.Image)
		}

		if !s.pipeline.ShouldProcess() {
			continue
		}
		if err := s.cycle(ctx, state, frame.Image); err != nil {
			return err
		}
		sleepCtx(ctx, s.cfg.CycleSleep)
	}
	return nil
}

func (s *Supervisor) cycle(ctx context.Context, state *DebounceState, img image.Image) error {
	start := time.Now()

	s.phase = "process"
	o, err := s.pipeline.Process(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.recorder.RecordOperation(metrics.OpCycle, metrics.StatusError)
		return err
	}

	s.phase = "decide"
	now := s.now()
	d := Decide(state, o, now)

	switch d.Action {
	case ActionCommit:
		s.phase = "commit"
		s.commit(ctx, d.IdentityID, now)
	case ActionAlreadyAttended:
		s.log.Debug("identity inside cooldown", logger.String("employee_id", d.IdentityID))
	}

	s.recorder.RecordOperation(metrics.OpCycle, o.Kind.String())
	s.recorder.RecordDuration(metrics.OpCycle, time.Since(start).Seconds())

	s.mu.Lock()
	s.lastResult = &Result{
		Kind:       o.Kind.String(),
		Action:     d.Action.String(),
		IdentityID: o.IdentityID,
		Similarity: o.Similarity,
		At:         now,
	}
	s.mu.Unlock()
	return nil
}

// commit writes an attendance event. Failures are logged and counted; the
// session keeps running.
func (s *Supervisor) commit(ctx context.Context, id string, now time.Time) {
	ident, err := s.refs.Identity(id)
	if err != nil {
		s.recorder.RecordOperation(metrics.OpCommit, metrics.StatusDropped)
		s.log.Warn("matched identity no longer exists", logger.String("employee_id", id), logger.Error(err))
		return
	}

	ev := attendance.NewEvent(ident.ID, ident.Name, ident.Department, now)
	if err := s.sink.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.recorder.RecordOperation(metrics.OpCommit, metrics.StatusError)
		s.log.Error("failed to record attendance",
			logger.String("employee_id", id),
			logger.Error(err))
		return
	}

	s.mu.Lock()
	s.commits++
	s.mu.Unlock()
	s.recorder.RecordOperation(metrics.OpCommit, metrics.StatusSuccess)
	s.log.Info("attendance recorded",
		logger.String("employee_id", ident.ID),
		logger.String("name", ident.Name),
		logger.String("time", ev.Clock()))
}

// transition moves to state to. Leaving StateStopped is not allowed and
// same-state transitions are ignored.
func (s *Supervisor) transition(to SessionState, reason string) {
	s.mu.Lock()
	from := s.state
	if from == to || from == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = to
	s.history = append(s.history, StateTransition{From: from, To: to, Timestamp: time.Now(), Reason: reason})
	if len(s.history) > maxStateHistory {
		s.history = s.history[len(s.history)-maxStateHistory:]
	}
	s.mu.Unlock()

	if m, ok := s.recorder.(interface{ SetState(string, []string) }); ok {
		m.SetState(to.String(), allStates)
	}
	s.log.Info("session state transition",
		logger.String("from", from.String()),
		logger.String("to", to.String()),
		logger.String("reason", reason))
}

// sleepCtx sleeps for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
