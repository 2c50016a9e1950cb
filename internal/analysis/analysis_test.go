package analysis

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/capture"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/datastore"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/vision"
)

type wholeImageDetector struct{}

func (wholeImageDetector) Detect(_ context.Context, img image.Image) (*vision.Face, error) {
	return &vision.Face{Box: img.Bounds(), Confidence: 0.99}, nil
}

type constantRecognizer struct{}

func (constantRecognizer) Embed(context.Context, image.Image, *vision.Face) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

type flatMeter struct{}

func (flatMeter) Sharpness(image.Image, image.Rectangle) (float64, error) { return 500, nil }

func fakeModels() *Models {
	return &Models{Detector: wholeImageDetector{}, Recognizer: constantRecognizer{}, Meter: flatMeter{}}
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := &conf.Settings{}
	s.Main.Name = "gate-test"
	s.Main.DataDir = t.TempDir()
	s.Camera.Backend = conf.BackendImages
	s.Camera.Source = t.TempDir()
	s.Camera.OpenTimeout = 2 * time.Second
	s.Camera.CloseTimeout = time.Second
	s.Recognition.SimilarityThreshold = 0.5
	s.Recognition.ConfirmFrames = 2
	s.Recognition.FrameSkip = 1
	s.Recognition.ProcessWidth = 640
	s.Recognition.Cooldown = time.Hour
	s.Recognition.MaxReadFailures = 3
	s.Recognition.RestartBackoff = 50 * time.Millisecond
	s.Recognition.IdleSleep = 5 * time.Millisecond
	s.Enrollment.PhotoBudget = 20
	s.Enrollment.MinSamples = 3
	s.Attendance.WorkStart = "08:00:00"
	s.Attendance.WorkEnd = "17:30:00"
	s.Attendance.MaxDates = 30
	return s
}

func writeFrames(t *testing.T, dir string, n int) {
	t.Helper()
	for i := range n {
		img := imaging.New(32, 32, color.NRGBA{R: uint8(40 * i), G: 120, B: 200, A: 255})
		require.NoError(t, imaging.Save(img, filepath.Join(dir, fmt.Sprintf("%03d.jpg", i))))
	}
}

func TestNewGrabberFactory(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	writeFrames(t, s.Camera.Source, 1)

	factory, err := NewGrabberFactory(s)
	require.NoError(t, err)
	g, err := factory()
	require.NoError(t, err)
	assert.IsType(t, &capture.ImageSequence{}, g)

	s.Camera.Backend = "v4l2"
	_, err = NewGrabberFactory(s)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestOutputsMirrorIntoSQLite(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = filepath.Join(t.TempDir(), "attendance.db")

	store, err := OpenStore(s, nil)
	require.NoError(t, err)
	csvLog, _, err := OpenAttendance(s, store)
	require.NoError(t, err)

	outputs, err := NewOutputs(s, csvLog, nil)
	require.NoError(t, err)

	at := time.Date(2026, 3, 2, 8, 1, 0, 0, time.Local)
	require.NoError(t, outputs.Sink.Record(t.Context(), attendance.NewEvent("E1", "Alice", "Ops", at)))
	outputs.Sink.Wait()

	records, err := csvLog.Records("2026-03-02")
	require.NoError(t, err)
	require.Len(t, records, 1)

	mirror := datastore.New(s)
	require.NoError(t, mirror.Open())
	t.Cleanup(func() { _ = mirror.Close() })
	events, err := mirror.EventsForDate(t.Context(), "2026-03-02")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "E1", events[0].EmployeeID)

	outputs.Close()
}

func TestOutputsNotificationWiring(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	store, err := OpenStore(s, nil)
	require.NoError(t, err)
	csvLog, _, err := OpenAttendance(s, store)
	require.NoError(t, err)

	s.Notification.Enabled = true
	s.Notification.URLs = []string{"nosuchservice://token@host"}
	_, err = NewOutputs(s, csvLog, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	s.Notification.URLs = []string{"generic://example.com/hook"}
	outputs, err := NewOutputs(s, csvLog, nil)
	require.NoError(t, err)
	outputs.Close()
}

func TestRecognitionServiceCommitsFromImageSequence(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	writeFrames(t, s.Camera.Source, 4)

	store, err := OpenStore(s, nil)
	require.NoError(t, err)
	require.NoError(t, store.AddIdentity("E1", "Alice", "Ops", [][]float32{{1, 0, 0, 0}}, nil, false))

	csvLog, reader, err := OpenAttendance(s, store)
	require.NoError(t, err)
	outputs, err := NewOutputs(s, csvLog, nil)
	require.NoError(t, err)
	t.Cleanup(outputs.Close)

	factory, err := NewGrabberFactory(s)
	require.NoError(t, err)

	service := NewRecognitionService(s, fakeModels(), store, outputs.Sink, factory, nil)
	require.NoError(t, service.Start(t.Context()))

	assert.Eventually(t, func() bool {
		records, err := reader.Records(reader.Today(), "E1")
		return err == nil && len(records) > 0
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, service.Stop())
	assert.False(t, service.Running())

	records, err := reader.Records(reader.Today(), "E1")
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "Alice", records[0].Name)
}

func TestCachedReportsFollowRosterChanges(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	store, err := OpenStore(s, nil)
	require.NoError(t, err)
	require.NoError(t, store.AddIdentityMetadataOnly("E1", "Alice", "Ops"))

	csvLog, reader, err := OpenAttendance(s, store)
	require.NoError(t, err)
	at := time.Date(2026, 3, 2, 7, 55, 0, 0, time.Local)
	require.NoError(t, csvLog.Record(t.Context(), attendance.NewEvent("E1", "Alice", "Ops", at)))

	rep, err := reader.Report("2026-03-02")
	require.NoError(t, err)
	require.Len(t, rep.Records, 1)

	require.NoError(t, store.AddIdentityMetadataOnly("E2", "Bob", "Lab"))
	require.NoError(t, store.UpdateIdentity("E1", "Alice Smith", ""))

	rep, err = reader.Report("2026-03-02")
	require.NoError(t, err)
	require.Len(t, rep.Records, 2, "a new identity shows up without waiting for the cache")
	bob, ok := rep.Record("E2")
	require.True(t, ok)
	assert.Equal(t, attendance.StatusAbsent, bob.Status)
	alice, ok := rep.Record("E1")
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", alice.Name)

	require.NoError(t, store.DeleteIdentity("E2"))
	rep, err = reader.Report("2026-03-02")
	require.NoError(t, err)
	assert.Len(t, rep.Records, 1)
}

func TestNewRegistrarUsesConfiguredBudget(t *testing.T) {
	t.Parallel()

	s := testSettings(t)
	store, err := OpenStore(s, nil)
	require.NoError(t, err)

	s.Enrollment.PhotoBudget = 1
	_, err = NewRegistrar(s, fakeModels(), store, nil)
	require.Error(t, err)

	s.Enrollment.PhotoBudget = 5
	reg, err := NewRegistrar(s, fakeModels(), store, nil)
	require.NoError(t, err)

	frames := make([]image.Image, 8)
	for i := range frames {
		frames[i] = imaging.New(24, 24, color.NRGBA{R: uint8(i * 20), A: 255})
	}
	res, err := reg.RegisterFromFrames(t.Context(), "E9", "Noor", "Lab", frames)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Stored)
	assert.True(t, store.Exists("E9"))
}
