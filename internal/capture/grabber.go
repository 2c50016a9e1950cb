// Package capture delivers the most recent frame of a camera or stream.
//
// A Camera runs one reader goroutine that overwrites a single latest-frame
// slot. Nothing is queued: consumers always see the newest frame and any
// backlog is dropped, which keeps latency bounded on RTSP sources.
package capture

import (
	"context"
	"image"
	"strings"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

var (
	// ErrCameraUnavailable is returned when a source cannot be opened or
	// never produces a frame.
	ErrCameraUnavailable = errors.NewStd("camera unavailable")

	// ErrTransientRead marks a single failed frame read.
	ErrTransientRead = errors.NewStd("frame read failed")
)

// Grabber is a blocking frame source. Grab returns io.EOF when the source is
// exhausted. Close may be called while Grab is blocked and must unblock it.
type Grabber interface {
	Open(ctx context.Context) error
	Grab() (image.Image, error)
	Close() error
}

// IsNetworkSource reports whether source is a streaming URL.
func IsNetworkSource(source string) bool {
	lower := strings.ToLower(source)
	for _, scheme := range []string{"rtsp://", "rtsps://", "http://", "https://"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// GetLogger returns the capture module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("capture")
}
