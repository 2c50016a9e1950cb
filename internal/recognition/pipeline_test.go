package recognition

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/faceattend/internal/facestore"
)

func testPipeline(t *testing.T, refs References, opts ...PipelineOption) (*Pipeline, *fakeDetector, *fakeRecognizer) {
	t.Helper()
	det, rec := &fakeDetector{}, &fakeRecognizer{}
	cfg := PipelineConfig{
		SimilarityThreshold: 0.5,
		AntiSpoofThreshold:  0.7,
		FrameSkip:           5,
		ProcessWidth:        640,
	}
	return NewPipeline(det, rec, refs, cfg, opts...), det, rec
}

func TestShouldProcessEveryNthFrame(t *testing.T) {
	t.Parallel()

	p, _, _ := testPipeline(t, newStore(t))

	var processed []int
	for i := range 12 {
		if p.ShouldProcess() {
			processed = append(processed, i)
		}
	}
	assert.Equal(t, []int{0, 5, 10}, processed)

	p.Reset()
	assert.True(t, p.ShouldProcess())
}

func TestDownscaleKeepsAspectRatio(t *testing.T) {
	t.Parallel()

	p, _, _ := testPipeline(t, newStore(t))

	wide := image.NewGray(image.Rect(0, 0, 1280, 720))
	got := p.Downscale(wide)
	assert.Equal(t, 640, got.Bounds().Dx())
	assert.Equal(t, 360, got.Bounds().Dy())

	narrow := image.NewGray(image.Rect(0, 0, 320, 240))
	assert.Same(t, narrow, p.Downscale(narrow))
}

func TestProcessOutcomes(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	tests := []struct {
		name      string
		pix       uint8
		spoof     bool
		wantKind  Kind
		wantID    string
		wantEmbed bool
	}{
		{"no face", pixNone, false, KindNoFace, "", false},
		{"match A", pixA, false, KindMatched, "A", true},
		{"match B", pixB, false, KindMatched, "B", true},
		{"below threshold", pixOther, false, KindUnrecognized, "", true},
		{"spoof when enabled", spoofPix, true, KindSpoof, "", false},
		{"live face with spoof check", pixA, true, KindMatched, "A", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var opts []PipelineOption
			if tt.spoof {
				opts = append(opts, WithAntiSpoof(fakeAntiSpoof{score: 0.95}))
			}
			p, _, rec := testPipeline(t, store, opts...)

			o, err := p.Process(t.Context(), frame(tt.pix))
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, o.Kind)
			assert.Equal(t, tt.wantID, o.IdentityID)
			assert.Equal(t, tt.wantEmbed, rec.calls.Load() > 0)
			if tt.wantKind == KindMatched {
				assert.InDelta(t, 1.0, o.Similarity, 1e-9)
			}
		})
	}
}

func TestProcessLowLivenessScoreIsSpoof(t *testing.T) {
	t.Parallel()

	p, _, rec := testPipeline(t, newStore(t), WithAntiSpoof(fakeAntiSpoof{score: 0.5}))

	o, err := p.Process(t.Context(), frame(pixA))
	require.NoError(t, err)
	assert.Equal(t, KindSpoof, o.Kind)
	assert.InDelta(t, 0.5, o.SpoofScore, 1e-9)
	assert.Zero(t, rec.calls.Load())
}

func TestProcessEmptyStoreIsUnrecognized(t *testing.T) {
	t.Parallel()

	empty, err := facestore.Open(t.TempDir())
	require.NoError(t, err)
	p, det, rec := testPipeline(t, empty, WithAntiSpoof(fakeAntiSpoof{score: 0.95}))

	o, err := p.Process(t.Context(), frame(pixA))
	require.NoError(t, err)
	assert.Equal(t, KindUnrecognized, o.Kind)
	assert.Zero(t, o.Similarity)
	assert.EqualValues(t, 1, det.calls.Load())
	assert.Zero(t, rec.calls.Load())
}

func TestProcessDetectorError(t *testing.T) {
	t.Parallel()

	p, det, _ := testPipeline(t, newStore(t))
	det.err = errors.New("model not loaded")

	_, err := p.Process(t.Context(), frame(pixA))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}
