package matcher

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/faceattend/internal/facestore"
)

func snapshotOf(rows [][]float32, owners []string) *facestore.Snapshot {
	dim := len(rows[0])
	data := make([]float64, 0, len(rows)*dim)
	mapping := make([]facestore.MappingEntry, len(rows))
	for i, r := range rows {
		for _, v := range r {
			data = append(data, float64(v))
		}
		mapping[i] = facestore.MappingEntry{IdentityID: owners[i]}
	}
	return &facestore.Snapshot{Matrix: mat.NewDense(len(rows), dim, data), Mapping: mapping}
}

func randomUnit(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return Normalize(v)
}

func TestEmptySnapshotIsNoMatch(t *testing.T) {
	t.Parallel()

	for _, snap := range []*facestore.Snapshot{nil, {}} {
		m, err := FindBestMatch([]float32{1, 0, 0}, snap)
		require.NoError(t, err)
		assert.Equal(t, NoMatch, m.IdentityID)
		assert.Zero(t, m.Similarity)
	}
}

func TestQueryEqualToRowMatchesIt(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))

	rows := make([][]float32, 12)
	owners := make([]string, 12)
	for i := range rows {
		rows[i] = randomUnit(r, 128)
		owners[i] = string(rune('A' + i))
	}
	snap := snapshotOf(rows, owners)

	for i, row := range rows {
		m, err := FindBestMatch(row, snap)
		require.NoError(t, err)
		assert.Equal(t, owners[i], m.IdentityID)
		assert.Equal(t, i, m.Row)
		assert.InDelta(t, 1.0, m.Similarity, 1e-5)
	}
}

func TestBestMatchIsTrueMaximum(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(7, 7))

	rows := make([][]float32, 40)
	owners := make([]string, 40)
	for i := range rows {
		rows[i] = randomUnit(r, 32)
		owners[i] = "id"
	}
	snap := snapshotOf(rows, owners)

	for range 50 {
		q := randomUnit(r, 32)
		m, err := FindBestMatch(q, snap)
		require.NoError(t, err)

		want, wantScore := -1, math.Inf(-1)
		for i, row := range rows {
			var dot float64
			for j := range row {
				dot += float64(row[j]) * float64(q[j])
			}
			if dot > wantScore {
				want, wantScore = i, dot
			}
		}
		assert.Equal(t, want, m.Row)
		assert.InDelta(t, wantScore, m.Similarity, 1e-6)
	}
}

func TestTiesGoToFirstRow(t *testing.T) {
	t.Parallel()

	snap := snapshotOf([][]float32{{0, 1}, {1, 0}, {1, 0}}, []string{"A", "B", "C"})
	m, err := FindBestMatch([]float32{1, 0}, snap)
	require.NoError(t, err)
	assert.Equal(t, "B", m.IdentityID)
	assert.Equal(t, 1, m.Row)
}

func TestDimensionMismatch(t *testing.T) {
	t.Parallel()

	snap := snapshotOf([][]float32{{1, 0, 0}}, []string{"A"})
	_, err := FindBestMatch([]float32{1, 0}, snap)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	v := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
	assert.Empty(t, Normalize(nil))
}
