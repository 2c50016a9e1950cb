package enrollment

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/capture"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/facestore"
)

// steppingClock advances one second per call so the capture throttle never
// rejects a sharp frame.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newLive(t *testing.T, src FrameSource, total int) (*LiveSession, *facestore.Store) {
	t.Helper()
	store := openStore(t)
	require.NoError(t, store.AddIdentityMetadataOnly("E7", "Dana", "Lab"))
	live := NewLiveSession(newRegistrar(t, store, 20), &fakeDetector{}, fakeMeter{}, src,
		LiveConfig{TotalFrames: total}, WithLiveClock(steppingClock()))
	t.Cleanup(live.Close)
	return live, store
}

func TestLiveSessionRegistersCapturedFrames(t *testing.T) {
	t.Parallel()

	src := &manualSource{}
	live, store := newLive(t, src, 3)

	started, err := live.Start(t.Context(), "E7")
	require.NoError(t, err)
	assert.Equal(t, ModeCapturing, started.Mode)
	assert.True(t, started.Recording)
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, 3, started.Total)

	require.Eventually(t, func() bool {
		src.push(frame(20))
		return live.Progress().Mode == ModeDone
	}, 5*time.Second, 5*time.Millisecond)

	p := live.Progress()
	assert.False(t, p.Recording)
	assert.Empty(t, p.Error)
	assert.Equal(t, 3, p.Count)
	require.NotNil(t, p.Result)
	assert.Equal(t, 3, p.Result.Stored)

	attaches, detaches := src.counts()
	assert.Equal(t, 1, attaches)
	assert.Equal(t, 1, detaches)

	ident, err := store.Identity("E7")
	require.NoError(t, err)
	assert.Equal(t, "Dana", ident.Name)
	assert.Len(t, ident.Embeddings, 3)
}

func TestLiveSessionSingleSessionAndCancel(t *testing.T) {
	t.Parallel()

	src := &manualSource{}
	live, _ := newLive(t, src, 30)

	_, err := live.Start(t.Context(), "E7")
	require.NoError(t, err)

	_, err = live.Start(t.Context(), "E7")
	require.ErrorIs(t, err, ErrSessionActive)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	require.NoError(t, live.Cancel())
	p := live.Progress()
	assert.Equal(t, ModeIdle, p.Mode)
	assert.Equal(t, "cancelled", p.Message)
	assert.False(t, p.Recording)

	_, detaches := src.counts()
	assert.Equal(t, 1, detaches)

	require.ErrorIs(t, live.Cancel(), ErrNoSession)

	_, err = live.Start(t.Context(), "E7")
	require.NoError(t, err, "a new session can start after cancel")
}

func TestLiveSessionUnknownIdentity(t *testing.T) {
	t.Parallel()

	src := &manualSource{}
	live, _ := newLive(t, src, 3)

	_, err := live.Start(t.Context(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, ModeIdle, live.Progress().Mode)

	attaches, _ := src.counts()
	assert.Zero(t, attaches)
}

func TestLiveSessionAttachFailure(t *testing.T) {
	t.Parallel()

	src := &manualSource{err: errBoom}
	live, _ := newLive(t, src, 3)

	_, err := live.Start(t.Context(), "E7")
	require.ErrorIs(t, err, errBoom)

	p := live.Progress()
	assert.Equal(t, ModeDone, p.Mode)
	assert.Equal(t, "boom", p.Error)
	assert.Equal(t, "camera unavailable", p.Message)
}

func TestLiveSessionGuidanceMessages(t *testing.T) {
	t.Parallel()

	src := &manualSource{}
	live, _ := newLive(t, src, 3)

	_, err := live.Start(t.Context(), "E7")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		src.push(frame(0))
		p := live.Progress()
		return !p.FaceDetected && p.Message == "no face detected, move into the camera view"
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		src.push(frame(5))
		p := live.Progress()
		return p.FaceDetected && p.IsBlurry
	}, 5*time.Second, 5*time.Millisecond)
	p := live.Progress()
	assert.Contains(t, p.Message, "blurry")
	assert.Zero(t, p.Count)

	require.NoError(t, live.Cancel())
}

type fakeShared struct {
	mu      sync.Mutex
	running atomic.Bool
	tap     func(image.Image)
}

func newFakeShared(running bool) *fakeShared {
	f := &fakeShared{}
	f.running.Store(running)
	return f
}

func (f *fakeShared) Running() bool { return f.running.Load() }

func (f *fakeShared) SetFrameTap(fn func(image.Image)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tap = fn
}

func (f *fakeShared) hasTap() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tap != nil
}

func TestCameraSourceTapsRunningRecognition(t *testing.T) {
	t.Parallel()

	shared := newFakeShared(true)
	src := NewCameraSource(shared, func() (capture.Grabber, error) {
		t.Fatal("dedicated camera must not be opened while recognition runs")
		return nil, nil
	}, "test", time.Second, time.Second)

	detach, lost, err := src.Attach(t.Context(), func(image.Image) {})
	require.NoError(t, err)
	require.NotNil(t, lost)
	assert.True(t, shared.hasTap())

	detach()
	assert.False(t, shared.hasTap())
}

func TestCameraSourceDedicatedCameraUnavailable(t *testing.T) {
	t.Parallel()

	src := NewCameraSource(newFakeShared(false), func() (capture.Grabber, error) {
		return nil, errBoom
	}, "test", time.Second, time.Second)

	_, _, err := src.Attach(t.Context(), func(image.Image) {})
	require.ErrorIs(t, err, capture.ErrCameraUnavailable)
}

func TestCameraSourceReportsStoppedRecognition(t *testing.T) {
	t.Parallel()

	shared := newFakeShared(true)
	src := NewCameraSource(shared, nil, "test", time.Second, time.Second)
	src.watchInterval = 5 * time.Millisecond

	detach, lost, err := src.Attach(t.Context(), func(image.Image) {})
	require.NoError(t, err)
	defer detach()

	shared.running.Store(false)
	select {
	case err := <-lost:
		require.ErrorIs(t, err, ErrSourceLost)
		assert.True(t, errors.IsCategory(err, errors.CategoryCamera))
	case <-time.After(5 * time.Second):
		t.Fatal("stopped recognition was not reported")
	}
}

func TestLiveSessionEndsWhenFeedLost(t *testing.T) {
	t.Parallel()

	src := &manualSource{}
	live, store := newLive(t, src, 5)

	_, err := live.Start(t.Context(), "E7")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		src.push(frame(20))
		return live.Progress().Count >= 1
	}, 5*time.Second, 5*time.Millisecond)

	src.drop(ErrSourceLost)
	require.Eventually(t, func() bool {
		return live.Progress().Mode == ModeDone
	}, 5*time.Second, 5*time.Millisecond)

	p := live.Progress()
	assert.False(t, p.Recording)
	assert.Contains(t, p.Error, "feed lost")
	assert.Nil(t, p.Result)
	_, detaches := src.counts()
	assert.Equal(t, 1, detaches)

	ident, err := store.Identity("E7")
	require.NoError(t, err)
	assert.Empty(t, ident.Embeddings, "nothing is registered from a lost feed")

	_, err = live.Start(t.Context(), "E7")
	require.NoError(t, err, "a new session can start after the feed was lost")
}

func TestLiveSessionDedicatedCameraExhausted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for i := range 2 {
		require.NoError(t, imaging.Save(frame(20), filepath.Join(dir, fmt.Sprintf("%02d.png", i))))
	}
	src := NewCameraSource(nil, func() (capture.Grabber, error) {
		return capture.NewImageSequence(dir, 20*time.Millisecond), nil
	}, "sequence", time.Second, time.Second)
	live, _ := newLive(t, src, 5)

	_, err := live.Start(t.Context(), "E7")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return live.Progress().Mode == ModeDone
	}, 5*time.Second, 10*time.Millisecond)

	p := live.Progress()
	assert.False(t, p.Recording)
	assert.Less(t, p.Count, 5)
	require.NotEmpty(t, p.Error)
	assert.Contains(t, p.Error, "feed lost")
}
