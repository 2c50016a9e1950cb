package recognition

import (
	"context"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/attendance"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/vision"
)

// Test frames encode their content in the first pixel:
//
//	0        no face
//	1..4     a face whose embedding is the unit vector at index value-1
//	spoofPix a face the anti-spoof check rejects
const (
	pixNone  = 0
	pixA     = 1
	pixB     = 2
	pixOther = 4
	spoofPix = 9
	dim      = 4
)

func frame(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 8, 6))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func pixel(img image.Image) uint8 {
	b := img.Bounds()
	return color.GrayModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.Gray).Y
}

func unit(hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

type fakeDetector struct {
	calls   atomic.Int32
	panicOn atomic.Int32 // panic on this call number, 0 disables
	err     error
}

func (d *fakeDetector) Detect(_ context.Context, img image.Image) (*vision.Face, error) {
	n := d.calls.Add(1)
	if p := d.panicOn.Load(); p != 0 && n == p {
		panic("detector exploded")
	}
	if d.err != nil {
		return nil, d.err
	}
	if pixel(img) == pixNone {
		return nil, nil
	}
	b := img.Bounds()
	return &vision.Face{Box: image.Rect(0, 0, b.Dx()/2, b.Dy()/2), Confidence: 0.9}, nil
}

type fakeRecognizer struct{ calls atomic.Int32 }

func (r *fakeRecognizer) Embed(_ context.Context, img image.Image, _ *vision.Face) ([]float32, error) {
	r.calls.Add(1)
	return unit(int(pixel(img)) - 1), nil
}

type fakeAntiSpoof struct {
	score float64
	err   error
}

func (a fakeAntiSpoof) Check(_ context.Context, img image.Image, _ image.Rectangle) (bool, float64, error) {
	if a.err != nil {
		return false, 0, a.err
	}
	if pixel(img) == spoofPix {
		return false, 0.1, nil
	}
	return true, a.score, nil
}

// newStore returns a store holding A (Alice) and B (Bob).
func newStore(t *testing.T) *facestore.Store {
	t.Helper()
	s, err := facestore.Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.AddIdentity("A", "Alice", "Eng", [][]float32{unit(pixA - 1)}, nil, false))
	require.NoError(t, s.AddIdentity("B", "Bob", "Ops", [][]float32{unit(pixB - 1)}, nil, false))
	return s
}

// streamGrabber returns img every delay until closed. After limit frames
// (when positive) it reports io.EOF, which stops the camera reader.
type streamGrabber struct {
	img   func() image.Image
	delay time.Duration
	limit int

	served    int
	closed    chan struct{}
	closeOnce sync.Once
}

func newStreamGrabber(img func() image.Image, limit int) *streamGrabber {
	return &streamGrabber{img: img, delay: time.Millisecond, limit: limit, closed: make(chan struct{})}
}

func (g *streamGrabber) Open(context.Context) error { return nil }

func (g *streamGrabber) Grab() (image.Image, error) {
	if g.limit > 0 && g.served >= g.limit {
		return nil, io.EOF
	}
	select {
	case <-g.closed:
		return nil, io.ErrClosedPipe
	case <-time.After(g.delay):
	}
	g.served++
	return g.img(), nil
}

func (g *streamGrabber) Close() error {
	g.closeOnce.Do(func() { close(g.closed) })
	return nil
}

// chanSink forwards events to a buffered channel.
type chanSink chan attendance.Event

func (c chanSink) Record(_ context.Context, ev attendance.Event) error {
	select {
	case c <- ev:
	default:
	}
	return nil
}
