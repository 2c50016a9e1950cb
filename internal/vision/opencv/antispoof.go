package opencv

import (
	"context"
	"image"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/vision"
)

const (
	fasInputSize = 80
	fasRealClass = 1
	fasBoxScale  = 2.7
)

// FASNet runs a MiniFASNet liveness model. The face box is enlarged before
// cropping since the model expects context around the face.
type FASNet struct {
	mu        sync.Mutex
	net       gocv.Net
	threshold float64
}

// NewFASNet loads a MiniFASNet ONNX model. Faces scoring below threshold are
// reported as not real.
func NewFASNet(modelPath string, threshold float64) (*FASNet, error) {
	if err := checkModel(modelPath); err != nil {
		return nil, err
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, errors.Newf("failed to load liveness model").
			Component("vision").
			Category(errors.CategoryModelLoad).
			Context("model_path", modelPath).
			Build()
	}
	return &FASNet{net: net, threshold: threshold}, nil
}

// Check implements vision.AntiSpoof.
func (f *FASNet) Check(ctx context.Context, img image.Image, box image.Rectangle) (bool, float64, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}

	src, err := gocv.ImageToMatRGB(vision.Crop(img, scaleBox(box, fasBoxScale, img.Bounds())))
	if err != nil {
		return false, 0, errors.New(err).Category(errors.CategoryRecognition).Context("stage", "convert").Build()
	}
	defer src.Close()

	blob := gocv.BlobFromImage(src, 1.0, image.Pt(fasInputSize, fasInputSize),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	f.mu.Lock()
	f.net.SetInput(blob, "")
	out := f.net.Forward("")
	f.mu.Unlock()
	defer out.Close()

	logits := make([]float64, out.Cols())
	for i := range logits {
		logits[i] = float64(out.GetFloatAt(0, i))
	}
	if len(logits) <= fasRealClass {
		return false, 0, errors.Newf("unexpected liveness output width %d", len(logits)).
			Component("vision").
			Category(errors.CategoryRecognition).
			Build()
	}

	score := softmax(logits)[fasRealClass]
	return score >= f.threshold, score, nil
}

// Close releases the network.
func (f *FASNet) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.net.Close()
}

func softmax(in []float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range in {
		maxV = math.Max(maxV, v)
	}
	out := make([]float64, len(in))
	var sum float64
	for i, v := range in {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// scaleBox grows box around its center by factor, clipped to bounds.
func scaleBox(box image.Rectangle, factor float64, bounds image.Rectangle) image.Rectangle {
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2
	hw := float64(box.Dx()) * factor / 2
	hh := float64(box.Dy()) * factor / 2
	r := image.Rect(int(cx-hw), int(cy-hh), int(cx+hw), int(cy+hh))
	return r.Intersect(bounds)
}
