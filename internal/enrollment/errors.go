package enrollment

import (
	"fmt"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

// MinSamples is the default minimum number of usable faces.
const MinSamples = 3

var (
	// ErrSessionActive is returned when a live session is already capturing
	// or saving.
	ErrSessionActive = errors.NewStd("enrollment session already active")

	// ErrNoSession is returned by Cancel when nothing is capturing.
	ErrNoSession = errors.NewStd("no active enrollment session")

	// ErrSourceLost is reported when the camera feeding a live session stops
	// delivering frames.
	ErrSourceLost = errors.NewStd("live enrollment camera feed lost")

	// ErrInvalidSpacing is returned by EvenSpacing for k < 2.
	ErrInvalidSpacing = errors.NewStd("even spacing needs at least two samples")
)

// InsufficientSamplesError reports that too few frames contained a usable
// face. Nothing is written to the store when it is returned.
type InsufficientSamplesError struct {
	Found    int
	Required int
}

func (e *InsufficientSamplesError) Error() string {
	required := e.Required
	if required == 0 {
		required = MinSamples
	}
	return fmt.Sprintf("only %d valid photos found, need at least %d", e.Found, required)
}

// GetLogger returns the enrollment module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("enrollment")
}
