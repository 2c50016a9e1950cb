package enrollment

import (
	"context"
	"image"
	"time"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/facestore"
	"github.com/tphakala/faceattend/internal/logger"
	"github.com/tphakala/faceattend/internal/observability/metrics"
)

// Store is the part of the face store enrollment writes to.
type Store interface {
	Identity(id string) (facestore.Identity, error)
	AddIdentity(id, name, department string, embeddings [][]float32, photos []image.Image, overwrite bool) error
}

// Result describes a completed registration.
type Result struct {
	EmployeeID string `json:"employee_id"`
	Found      int    `json:"found"`
	Stored     int    `json:"stored"`
}

// Registrar builds and stores templates.
type Registrar struct {
	extractor   *Extractor
	store       Store
	photoBudget int
	minSamples  int
	recorder    metrics.Recorder
	log         logger.Logger
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithMinSamples overrides MinSamples.
func WithMinSamples(n int) RegistrarOption {
	return func(r *Registrar) { r.minSamples = max(n, 1) }
}

// WithRegistrarRecorder records enrollment outcomes.
func WithRegistrarRecorder(rec metrics.Recorder) RegistrarOption {
	return func(r *Registrar) { r.recorder = rec }
}

// NewRegistrar validates the photo budget, which must be at least two.
func NewRegistrar(extractor *Extractor, store Store, photoBudget int, opts ...RegistrarOption) (*Registrar, error) {
	if photoBudget < 2 {
		return nil, errors.New(ErrInvalidSpacing).
			Component("enrollment").
			Category(errors.CategoryValidation).
			Context("photo_budget", photoBudget).
			Build()
	}
	r := &Registrar{
		extractor:   extractor,
		store:       store,
		photoBudget: photoBudget,
		minSamples:  MinSamples,
		recorder:    metrics.NopRecorder{},
		log:         GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RegisterFromFrames extracts faces from every frame, requires at least the
// minimum number of samples, thins them evenly to the photo budget and
// replaces the identity's template and photos.
func (r *Registrar) RegisterFromFrames(ctx context.Context, id, name, department string, frames []image.Image) (Result, error) {
	start := time.Now()
	res, err := r.register(ctx, id, name, department, frames)
	r.recorder.RecordDuration(metrics.OpEnroll, time.Since(start).Seconds())
	if err != nil {
		r.recorder.RecordOperation(metrics.OpEnroll, metrics.StatusError)
		r.log.Warn("enrollment failed",
			logger.String("employee_id", id),
			logger.Int("frames", len(frames)),
			logger.Error(err))
		return res, err
	}

	r.recorder.RecordOperation(metrics.OpEnroll, metrics.StatusSuccess)
	if o, ok := r.recorder.(interface{ ObserveSamples(int) }); ok {
		o.ObserveSamples(res.Stored)
	}
	r.log.Info("identity enrolled",
		logger.String("employee_id", id),
		logger.Int("found", res.Found),
		logger.Int("stored", res.Stored),
		logger.Duration("elapsed", time.Since(start)))
	return res, nil
}

func (r *Registrar) register(ctx context.Context, id, name, department string, frames []image.Image) (Result, error) {
	res := Result{EmployeeID: id}

	embeddings, photos, err := r.extractor.ExtractEmbeddings(ctx, frames, 1)
	if err != nil {
		return res, err
	}
	res.Found = len(embeddings)

	if len(embeddings) < r.minSamples {
		return res, errors.New(&InsufficientSamplesError{Found: len(embeddings), Required: r.minSamples}).
			Component("enrollment").
			Category(errors.CategoryValidation).
			Context("employee_id", id).
			Build()
	}

	if len(embeddings) > r.photoBudget {
		indices, err := EvenSpacing(len(embeddings), r.photoBudget)
		if err != nil {
			return res, err
		}
		keptEmb := make([][]float32, len(indices))
		keptPhotos := make([]image.Image, len(indices))
		for i, idx := range indices {
			keptEmb[i], keptPhotos[i] = embeddings[idx], photos[idx]
		}
		embeddings, photos = keptEmb, keptPhotos
	}

	if err := r.store.AddIdentity(id, name, department, embeddings, photos, true); err != nil {
		return res, err
	}
	res.Stored = len(embeddings)
	return res, nil
}

// RegisterExisting enrolls frames for an identity already in the store,
// keeping its name and department.
func (r *Registrar) RegisterExisting(ctx context.Context, id string, frames []image.Image) (Result, error) {
	ident, err := r.store.Identity(id)
	if err != nil {
		return Result{EmployeeID: id}, err
	}
	return r.RegisterFromFrames(ctx, id, ident.Name, ident.Department, frames)
}
