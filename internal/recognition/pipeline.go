// Package recognition turns a live frame stream into debounced attendance
// commits.
//
// Pipeline processes single frames (skip, downscale, detect, liveness,
// embed, match). Decide folds the per-frame outcomes into a DebounceState.
// Supervisor owns the camera session and restarts it on faults, and Service
// exposes start, stop and status to the rest of the program.
package recognition

import (
	"context"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/matcher"
	"github.com/tphakala/faceattend/internal/observability/metrics"
	"github.com/tphakala/faceattend/internal/vision"
)

// References is the read side of the face store used by the loop.
type References interface {
	ReferenceMatrix() *facestore.Snapshot
	Identity(id string) (facestore.Identity, error)
}

// PipelineConfig holds the per-frame tuning values.
type PipelineConfig struct {
	SimilarityThreshold float64
	AntiSpoofThreshold  float64
	FrameSkip           int
	ProcessWidth        int
}

// Pipeline runs the per-frame recognition steps. It keeps a frame counter
// for skipping and must be used from one goroutine.
type Pipeline struct {
	detector   vision.Detector
	recognizer vision.Recognizer
	antiSpoof  vision.AntiSpoof
	refs       References
	cfg        PipelineConfig
	recorder   metrics.Recorder
	log        logger.Logger

	frames uint64
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithAntiSpoof enables the liveness check.
func WithAntiSpoof(a vision.AntiSpoof) PipelineOption {
	return func(p *Pipeline) { p.antiSpoof = a }
}

// WithPipelineRecorder records per-step metrics.
func WithPipelineRecorder(r metrics.Recorder) PipelineOption {
	return func(p *Pipeline) { p.recorder = r }
}

// NewPipeline builds a pipeline. FrameSkip below one processes every frame.
func NewPipeline(det vision.Detector, rec vision.Recognizer, refs References, cfg PipelineConfig, opts ...PipelineOption) *Pipeline {
	cfg.FrameSkip = max(cfg.FrameSkip, 1)
	p := &Pipeline{
		detector:   det,
		recognizer: rec,
		refs:       refs,
		cfg:        cfg,
		recorder:   metrics.NopRecorder{},
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reset zeroes the frame counter. Called at the start of every session.
func (p *Pipeline) Reset() { p.frames = 0 }

// ShouldProcess counts one frame and reports whether it is a processing
// frame. Frames 0, N, 2N, ... are processed.
func (p *Pipeline) ShouldProcess() bool {
	n := p.frames
	p.frames++
	return n%uint64(p.cfg.FrameSkip) == 0
}

// Downscale shrinks img to the configured width keeping the aspect ratio.
// Narrower images are returned unchanged.
func (p *Pipeline) Downscale(img image.Image) image.Image {
	if p.cfg.ProcessWidth <= 0 || img.Bounds().Dx() <= p.cfg.ProcessWidth {
		return img
	}
	return imaging.Resize(img, p.cfg.ProcessWidth, 0, imaging.Lanczos)
}

// Process analyzes one frame that ShouldProcess selected. Boxes in the
// outcome are relative to the downscaled image.
func (p *Pipeline) Process(ctx context.Context, frame image.Image) (Outcome, error) {
	img := p.Downscale(frame)

	start := time.Now()
	face, err := p.detector.Detect(ctx, img)
	p.recorder.RecordDuration(metrics.OpDetect, time.Since(start).Seconds())
	if err != nil {
		p.recorder.RecordError(metrics.OpDetect, "detector")
		return Outcome{}, errors.New(err).
			Component("recognition").
			Category(errors.CategoryRecognition).
			Context("operation", "detect").
			Build()
	}
	if face == nil {
		return NoFace(), nil
	}

	snap := p.refs.ReferenceMatrix()
	if snap.Rows() == 0 {
		return Unrecognized(face, 0), nil
	}

	if p.antiSpoof != nil {
		live, score, err := p.antiSpoof.Check(ctx, img, face.Box)
		if err != nil {
			p.recorder.RecordError(metrics.OpAntiSpoof, "check")
			category := errors.CategoryRecognition
			if errors.IsTransient(err) {
				category = errors.CategoryOf(err)
			}
			return Outcome{}, errors.New(err).
				Component("recognition").
				Category(category).
				Context("operation", "antispoof").
				Build()
		}
		if !live || score < p.cfg.AntiSpoofThreshold {
			p.recorder.RecordOperation(metrics.OpAntiSpoof, KindSpoof.String())
			p.log.Warn("spoof attempt rejected",
				logger.Float64("score", score),
				logger.Bool("model_live", live),
				logger.Float64("threshold", p.cfg.AntiSpoofThreshold))
			return Spoof(face, score), nil
		}
		p.recorder.RecordOperation(metrics.OpAntiSpoof, "live")
	}

	start = time.Now()
	embedding, err := p.recognizer.Embed(ctx, img, face)
	p.recorder.RecordDuration(metrics.OpEmbed, time.Since(start).Seconds())
	if err != nil {
		p.recorder.RecordError(metrics.OpEmbed, "recognizer")
		return Outcome{}, errors.New(err).
			Component("recognition").
			Category(errors.CategoryRecognition).
			Context("operation", "embed").
			Build()
	}

	m, err := matcher.FindBestMatch(embedding, snap)
	if err != nil {
		return Outcome{}, err
	}
	if o, ok := p.recorder.(interface{ ObserveSimilarity(float64) }); ok {
		o.ObserveSimilarity(m.Similarity)
	}

	if m.IdentityID == matcher.NoMatch || m.Similarity < p.cfg.SimilarityThreshold {
		return Unrecognized(face, m.Similarity), nil
	}
	return Matched(face, m.IdentityID, m.Similarity), nil
}
