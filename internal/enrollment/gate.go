package enrollment

import (
	"context"
	"image"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/faceattend/internal/vision"
)

// Default gate settings.
const (
	DefaultBlurThreshold   = 100.0
	DefaultCaptureInterval = 500 * time.Millisecond
)

// GateResult is the verdict on one live frame.
type GateResult struct {
	Face      *vision.Face
	Sharpness float64
	Blurry    bool
	Accepted  bool
}

// FaceDetected reports whether the frame had a face.
func (r GateResult) FaceDetected() bool { return r.Face != nil }

// Gate accepts frames that contain a face whose region is sharp enough, at
// most one per capture interval. A Gate is not safe for concurrent use.
type Gate struct {
	detector      vision.Detector
	meter         vision.SharpnessMeter
	blurThreshold float64
	limiter       *rate.Limiter
}

// NewGate returns a gate. Zero values select the defaults.
func NewGate(det vision.Detector, meter vision.SharpnessMeter, blurThreshold float64, interval time.Duration) *Gate {
	if blurThreshold <= 0 {
		blurThreshold = DefaultBlurThreshold
	}
	if interval <= 0 {
		interval = DefaultCaptureInterval
	}
	return &Gate{
		detector:      det,
		meter:         meter,
		blurThreshold: blurThreshold,
		limiter:       rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Evaluate checks img at time now. The throttle is only consumed by frames
// that pass the face and sharpness checks.
func (g *Gate) Evaluate(ctx context.Context, img image.Image, now time.Time) (GateResult, error) {
	face, err := g.detector.Detect(ctx, img)
	if err != nil || face == nil {
		return GateResult{}, err
	}

	res := GateResult{Face: face}
	if face.Box.Intersect(img.Bounds()).Empty() {
		return res, nil
	}

	res.Sharpness, err = g.meter.Sharpness(img, face.Box)
	if err != nil {
		return res, err
	}
	res.Blurry = res.Sharpness < g.blurThreshold
	res.Accepted = !res.Blurry && g.limiter.AllowN(now, 1)
	return res, nil
}
