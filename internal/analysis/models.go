// Package analysis assembles the capture, recognition, enrollment and
// attendance components from settings and runs them.
package analysis

import (
	"io"
	"time"

	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/privacy"
	"github.com/tphakala/faceattend/internal/vision"
	"github.com/tphakala/faceattend/internal/vision/opencv"
	"github.com/tphakala/faceattend/internal/vision/remote"
)

// remoteDefaultTimeout applies when antispoof.timeout is unset.
const remoteDefaultTimeout = 3 * time.Second

// GetLogger returns the analysis module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}

// Models are the loaded face models. AntiSpoof is nil when liveness checks
// are disabled.
type Models struct {
	Detector   vision.Detector
	Recognizer vision.Recognizer
	AntiSpoof  vision.AntiSpoof
	Meter      vision.SharpnessMeter

	closers []io.Closer
}

// LoadModels loads the detector, recognizer and the configured anti-spoof
// provider. Models already loaded are released when a later one fails.
func LoadModels(settings *conf.Settings) (*Models, error) {
	m := &Models{Meter: opencv.LaplacianMeter{}}

	det, err := opencv.NewYuNetDetector(settings.Models.DetectorPath,
		float32(settings.Models.ScoreThreshold), float32(settings.Models.NMSThreshold))
	if err != nil {
		return nil, modelError(err, "detector", settings.Models.DetectorPath)
	}
	m.Detector = det
	m.closers = append(m.closers, det)

	rec, err := opencv.NewSFaceRecognizer(settings.Models.RecognizerPath)
	if err != nil {
		m.Close()
		return nil, modelError(err, "recognizer", settings.Models.RecognizerPath)
	}
	m.Recognizer = rec
	m.closers = append(m.closers, rec)

	spoof, err := newAntiSpoof(&settings.AntiSpoof)
	if err != nil {
		m.Close()
		return nil, err
	}
	if spoof != nil {
		m.AntiSpoof = spoof
		if c, ok := spoof.(io.Closer); ok {
			m.closers = append(m.closers, c)
		}
	}

	GetLogger().Info("face models loaded",
		logger.String("detector", settings.Models.DetectorPath),
		logger.String("recognizer", settings.Models.RecognizerPath),
		logger.Bool("antispoof", m.AntiSpoof != nil))
	return m, nil
}

// newAntiSpoof returns nil when liveness checks are disabled.
func newAntiSpoof(s *conf.AntiSpoofSettings) (vision.AntiSpoof, error) {
	if !s.Enabled {
		return nil, nil
	}
	switch s.Provider {
	case conf.AntiSpoofRemote:
		GetLogger().Info("using remote anti-spoof service",
			logger.String("url", privacy.SanitizeStreamURL(s.URL)))
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = remoteDefaultTimeout
		}
		return remote.NewAntiSpoofClient(s.URL, s.Threshold, timeout, nil), nil
	default:
		fas, err := opencv.NewFASNet(s.ModelPath, s.Threshold)
		if err != nil {
			return nil, modelError(err, "antispoof", s.ModelPath)
		}
		return fas, nil
	}
}

func modelError(err error, kind, path string) error {
	return errors.New(err).
		Component("vision").
		Category(errors.CategoryConfiguration).
		Context("model", kind).
		Context("path", path).
		Build()
}

// Close releases the models in reverse load order.
func (m *Models) Close() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			GetLogger().Warn("failed to release model", logger.Error(err))
		}
	}
	m.closers = nil
}
