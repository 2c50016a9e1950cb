// Package opencv implements the vision interfaces with gocv: YuNet detection,
// SFace embeddings, MiniFASNet liveness and Laplacian sharpness. It also
// provides a VideoCapture based frame grabber.
package opencv

import (
	"context"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/vision"
)

// YuNet output row layout: box, five landmarks, score.
const (
	yunetCols      = 15
	yunetScoreCol  = 14
	yunetLandmarks = 5
	yunetTopK      = 5000
)

// YuNetDetector wraps gocv.FaceDetectorYN. The underlying detector is not
// safe for concurrent use, so calls are serialized.
type YuNetDetector struct {
	mu  sync.Mutex
	det gocv.FaceDetectorYN
}

// NewYuNetDetector loads the YuNet ONNX model.
func NewYuNetDetector(modelPath string, scoreThreshold, nmsThreshold float32) (*YuNetDetector, error) {
	if err := checkModel(modelPath); err != nil {
		return nil, err
	}
	det := gocv.NewFaceDetectorYNWithParams(modelPath, "", image.Pt(320, 320),
		scoreThreshold, nmsThreshold, yunetTopK, 0, 0)
	return &YuNetDetector{det: det}, nil
}

// Detect returns the largest face or nil.
func (d *YuNetDetector) Detect(ctx context.Context, img image.Image) (*vision.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryRecognition).Context("stage", "convert").Build()
	}
	defer src.Close()

	faces := gocv.NewMat()
	defer faces.Close()

	d.mu.Lock()
	d.det.SetInputSize(image.Pt(src.Cols(), src.Rows()))
	d.det.Detect(src, &faces)
	d.mu.Unlock()

	if faces.Empty() || faces.Rows() == 0 {
		return nil, nil
	}

	found := make([]vision.Face, 0, faces.Rows())
	for r := range faces.Rows() {
		found = append(found, parseYuNetRow(faces, r))
	}
	return vision.Largest(found), nil
}

// Close releases the model.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det.Close()
	return nil
}

func parseYuNetRow(faces gocv.Mat, r int) vision.Face {
	raw := make([]float32, yunetCols)
	for c := range yunetCols {
		raw[c] = faces.GetFloatAt(r, c)
	}
	x, y, w, h := int(raw[0]), int(raw[1]), int(raw[2]), int(raw[3])

	landmarks := make([]image.Point, yunetLandmarks)
	for i := range yunetLandmarks {
		landmarks[i] = image.Pt(int(raw[4+2*i]), int(raw[5+2*i]))
	}

	return vision.Face{
		Box:        image.Rect(x, y, x+w, y+h),
		Landmarks:  landmarks,
		Confidence: raw[yunetScoreCol],
		Raw:        raw,
	}
}

func checkModel(path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.New(err).
			Component("vision").
			Category(errors.CategoryModelLoad).
			Context("model_path", path).
			Build()
	}
	return nil
}
