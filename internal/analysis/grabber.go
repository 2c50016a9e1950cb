package analysis

import (
	"time"

	"github.com/tphakala/faceattend/internal/capture"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/privacy"
	"github.com/tphakala/faceattend/internal/recognition"
	"github.com/tphakala/faceattend/internal/vision/opencv"
)

// imageSequenceInterval paces the images backend at roughly camera speed.
const imageSequenceInterval = 100 * time.Millisecond

// NewGrabberFactory returns a factory creating a fresh grabber for the
// configured backend on every call. The ffmpeg binary is resolved once.
func NewGrabberFactory(settings *conf.Settings) (recognition.GrabberFactory, error) {
	source := settings.Camera.Source

	switch settings.Camera.Backend {
	case conf.BackendFFmpeg:
		ffmpegPath, err := conf.ResolveFfmpegPath(settings.Camera.FfmpegPath)
		if err != nil {
			return nil, err
		}
		GetLogger().Info("using ffmpeg camera backend",
			logger.String("ffmpeg", ffmpegPath),
			logger.String("source", privacy.SanitizeStreamURL(source)))
		return func() (capture.Grabber, error) {
			return capture.NewFFmpegGrabber(ffmpegPath, source), nil
		}, nil

	case conf.BackendOpenCV:
		return func() (capture.Grabber, error) {
			return opencv.NewVideoGrabber(source), nil
		}, nil

	case conf.BackendImages:
		return func() (capture.Grabber, error) {
			return capture.NewImageSequence(source, imageSequenceInterval), nil
		}, nil
	}

	return nil, errors.Newf("camera backend %q is not supported", settings.Camera.Backend).
		Component("capture").
		Category(errors.CategoryConfiguration).
		Build()
}
