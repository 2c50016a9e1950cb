// Package enrollment builds face templates from captured frames.
//
// Extractor turns frames into embeddings, Registrar checks the sample count,
// thins the set to the photo budget and writes it to the store, Gate filters
// live frames by face presence and sharpness, and LiveSession drives a
// capture session from a camera feed.
package enrollment

import (
	"context"
	"image"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/observability/metrics"
	"github.com/tphakala/faceattend/internal/vision"
)

// Extractor detects and embeds faces in batches of frames.
type Extractor struct {
	detector   vision.Detector
	recognizer vision.Recognizer
	workers    int
	recorder   metrics.Recorder
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithWorkers sets how many frames are processed concurrently.
func WithWorkers(n int) ExtractorOption {
	return func(e *Extractor) { e.workers = max(n, 1) }
}

// WithExtractorRecorder records detect and embed timings.
func WithExtractorRecorder(r metrics.Recorder) ExtractorOption {
	return func(e *Extractor) { e.recorder = r }
}

// NewExtractor returns an extractor using up to four workers.
func NewExtractor(det vision.Detector, rec vision.Recognizer, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		detector:   det,
		recognizer: rec,
		workers:    min(runtime.NumCPU(), 4),
		recorder:   metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type sample struct {
	embedding []float32
	photo     image.Image
}

// ExtractEmbeddings keeps every sampleInterval-th frame, detects its largest
// face and embeds it. Frames without a face are skipped. The returned slices
// are parallel and keep the input order.
func (e *Extractor) ExtractEmbeddings(ctx context.Context, frames []image.Image, sampleInterval int) (embeddings [][]float32, photos []image.Image, err error) {
	sampleInterval = max(sampleInterval, 1)

	var picked []image.Image
	for i, f := range frames {
		if i%sampleInterval == 0 && f != nil {
			picked = append(picked, f)
		}
	}

	results := make([]*sample, len(picked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, frame := range picked {
		g.Go(func() error {
			s, err := e.extractOne(gctx, frame)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, errors.New(err).
			Component("enrollment").
			Category(errors.CategoryEnrollment).
			Context("frames", len(picked)).
			Build()
	}

	for _, s := range results {
		if s == nil {
			continue
		}
		embeddings = append(embeddings, s.embedding)
		photos = append(photos, s.photo)
	}
	return embeddings, photos, nil
}

func (e *Extractor) extractOne(ctx context.Context, frame image.Image) (*sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	face, err := e.detector.Detect(ctx, frame)
	e.recorder.RecordDuration(metrics.OpDetect, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if face == nil {
		return nil, nil
	}

	start = time.Now()
	emb, err := e.recognizer.Embed(ctx, frame, face)
	e.recorder.RecordDuration(metrics.OpEmbed, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return &sample{embedding: emb, photo: frame}, nil
}
