package recognition

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/faceattend/internal/errors"
)

var (
	// ErrAlreadyRunning is returned by Start while a supervisor runs.
	ErrAlreadyRunning = errors.NewStd("recognition already running")

	// ErrNotRunning is returned by Stop when nothing runs.
	ErrNotRunning = errors.NewStd("recognition not running")
)

// ServiceStatus is the operational view of the service.
type ServiceStatus struct {
	Running bool       `json:"running"`
	Since   *time.Time `json:"since,omitempty"`
	Status
}

// Service starts and stops supervisors on demand. A stopped supervisor is
// never reused; Start builds a new one through the factory.
type Service struct {
	newSupervisor func() *Supervisor

	mu     sync.Mutex
	sup    *Supervisor
	cancel context.CancelFunc
	done   chan struct{}
	since  time.Time
	tap    FrameTap
}

// NewService returns a stopped service.
func NewService(newSupervisor func() *Supervisor) *Service {
	return &Service{newSupervisor: newSupervisor}
}

// Start launches a supervisor in the background. The supervisor outlives
// ctx's cancellation and runs until Stop; ctx only contributes values.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New(ErrAlreadyRunning).
			Component("recognition").
			Category(errors.CategoryConflict).
			Build()
	}

	sup := s.newSupervisor()
	sup.SetFrameTap(s.tap)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		sup.Run(runCtx)
	}()

	s.sup, s.cancel, s.done = sup, cancel, done
	s.since = time.Now()
	GetLogger().Info("recognition started")
	return nil
}

// Stop cancels the running supervisor and waits until its camera is closed.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return errors.New(ErrNotRunning).
			Component("recognition").
			Category(errors.CategoryState).
			Build()
	}

	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	GetLogger().Info("recognition stopped")
	return nil
}

// Running reports whether a supervisor is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// SetFrameTap installs fn on the current and every later supervisor. nil
// removes it.
func (s *Service) SetFrameTap(fn FrameTap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tap = fn
	if s.sup != nil {
		s.sup.SetFrameTap(fn)
	}
}

// Status reports the running flag and the latest supervisor's status.
func (s *Service) Status() ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := ServiceStatus{Running: s.cancel != nil}
	if s.sup == nil {
		st.State = StateIdle.String()
		return st
	}
	st.Status = s.sup.Status()
	if st.Running {
		since := s.since
		st.Since = &since
	}
	return st
}
