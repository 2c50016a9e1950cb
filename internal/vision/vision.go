// Package vision defines the face model interfaces the pipelines consume.
// Concrete implementations live in the opencv and remote subpackages.
package vision

import (
	"context"
	"image"

	"github.com/disintegration/imaging"

	"github.com/tphakala/faceattend/internal/logger"
)

// Face is one detected face. Coordinates are relative to the analyzed image.
type Face struct {
	Box        image.Rectangle
	Landmarks  []image.Point
	Confidence float32

	// Raw is the detector's native output row. Recognizers that align on
	// detector landmarks read it; others ignore it.
	Raw []float32
}

// Detector finds the largest face in an image, nil when there is none.
type Detector interface {
	Detect(ctx context.Context, img image.Image) (*Face, error)
}

// Recognizer computes an L2-normalized embedding for a detected face.
type Recognizer interface {
	Embed(ctx context.Context, img image.Image, face *Face) ([]float32, error)
}

// AntiSpoof classifies a face region as live or replayed.
type AntiSpoof interface {
	Check(ctx context.Context, img image.Image, box image.Rectangle) (live bool, score float64, err error)
}

// SharpnessMeter returns a focus measure of a face region; larger is sharper.
type SharpnessMeter interface {
	Sharpness(img image.Image, box image.Rectangle) (float64, error)
}

// Crop returns the part of img inside box, clipped to the image bounds.
func Crop(img image.Image, box image.Rectangle) image.Image {
	r := box.Intersect(img.Bounds())
	if r.Empty() {
		return img
	}
	return imaging.Crop(img, r)
}

// Largest returns the face with the biggest box area.
func Largest(faces []Face) *Face {
	var best *Face
	bestArea := -1
	for i := range faces {
		area := faces[i].Box.Dx() * faces[i].Box.Dy()
		if area > bestArea {
			best, bestArea = &faces[i], area
		}
	}
	return best
}

// GetLogger returns the vision module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("vision")
}
