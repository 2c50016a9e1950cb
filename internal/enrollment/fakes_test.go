package enrollment

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/vision"
)

// Frames carry their content in the first pixel: 0 has no face, anything
// else is a face whose sharpness is value*10 and whose embedding is the unit
// vector at value % dim.
const dim = 8

func frame(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func pixel(img image.Image) uint8 {
	b := img.Bounds()
	return color.GrayModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.Gray).Y
}

type fakeDetector struct {
	calls atomic.Int32
	err   error
}

func (d *fakeDetector) Detect(_ context.Context, img image.Image) (*vision.Face, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	if pixel(img) == 0 {
		return nil, nil
	}
	return &vision.Face{Box: image.Rect(2, 2, 12, 12), Confidence: 0.9}, nil
}

type fakeRecognizer struct{}

func (fakeRecognizer) Embed(_ context.Context, img image.Image, _ *vision.Face) ([]float32, error) {
	v := make([]float32, dim)
	v[int(pixel(img))%dim] = 1
	return v, nil
}

type fakeMeter struct{}

func (fakeMeter) Sharpness(img image.Image, _ image.Rectangle) (float64, error) {
	return float64(pixel(img)) * 10, nil
}

func faces(n int, v uint8) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = frame(v)
	}
	return out
}

func openStore(t *testing.T) *facestore.Store {
	t.Helper()
	s, err := facestore.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func newRegistrar(t *testing.T, store Store, budget int) *Registrar {
	t.Helper()
	r, err := NewRegistrar(NewExtractor(&fakeDetector{}, fakeRecognizer{}, WithWorkers(3)), store, budget)
	require.NoError(t, err)
	return r
}

// manualSource hands the consumer to the test, which pushes frames itself.
type manualSource struct {
	mu       sync.Mutex
	fn       func(image.Image)
	attaches int
	detaches int
	err      error
	lost     chan error
}

func (s *manualSource) Attach(_ context.Context, fn func(image.Image)) (func(), <-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, nil, s.err
	}
	s.fn = fn
	s.attaches++
	s.lost = make(chan error, 1)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fn = nil
		s.detaches++
	}, s.lost, nil
}

// drop reports the feed as lost, as a camera that stops on its own does.
func (s *manualSource) drop(err error) {
	s.mu.Lock()
	lost := s.lost
	s.mu.Unlock()
	lost <- err
}

func (s *manualSource) push(img image.Image) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(img)
	}
}

func (s *manualSource) counts() (attaches, detaches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attaches, s.detaches
}

var errBoom = errors.New("boom")
