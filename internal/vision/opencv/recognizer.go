package opencv

import (
	"context"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/matcher"
	"github.com/tphakala/faceattend/internal/vision"
)

// SFaceRecognizer aligns a YuNet face and extracts its SFace feature.
type SFaceRecognizer struct {
	mu  sync.Mutex
	rec gocv.FaceRecognizerSF
}

// NewSFaceRecognizer loads the SFace ONNX model.
func NewSFaceRecognizer(modelPath string) (*SFaceRecognizer, error) {
	if err := checkModel(modelPath); err != nil {
		return nil, err
	}
	return &SFaceRecognizer{rec: gocv.NewFaceRecognizerSF(modelPath, "")}, nil
}

// Embed returns the L2-normalized feature of face.
func (r *SFaceRecognizer) Embed(ctx context.Context, img image.Image, face *vision.Face) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if face == nil || len(face.Raw) < yunetCols {
		return nil, errors.Newf("face has no detector landmarks to align on").
			Component("vision").
			Category(errors.CategoryRecognition).
			Build()
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryRecognition).Context("stage", "convert").Build()
	}
	defer src.Close()

	box := gocv.NewMatWithSize(1, yunetCols, gocv.MatTypeCV32F)
	defer box.Close()
	for c, v := range face.Raw[:yunetCols] {
		box.SetFloatAt(0, c, v)
	}

	aligned := gocv.NewMat()
	defer aligned.Close()
	feature := gocv.NewMat()
	defer feature.Close()

	r.mu.Lock()
	r.rec.AlignCrop(src, box, &aligned)
	r.rec.Feature(aligned, &feature)
	r.mu.Unlock()

	if feature.Empty() {
		return nil, errors.Newf("recognizer returned an empty feature").
			Component("vision").
			Category(errors.CategoryRecognition).
			Build()
	}

	out := make([]float32, feature.Total())
	for i := range out {
		out[i] = feature.GetFloatAt(0, i)
	}
	return matcher.Normalize(out), nil
}

// Close releases the model.
func (r *SFaceRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.Close()
	return nil
}
