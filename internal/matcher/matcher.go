// Package matcher finds the closest reference embedding for a query.
package matcher

import (
	"gonum.org/v1/gonum/mat"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/facestore"
)

// NoMatch is the identity returned when there is nothing to compare against.
const NoMatch = ""

// ErrDimensionMismatch is returned when the query length differs from the
// reference embedding dimension.
var ErrDimensionMismatch = errors.NewStd("embedding dimension mismatch")

// Match is the best row for a query. The caller decides acceptance by
// comparing Similarity with its threshold.
type Match struct {
	IdentityID string
	Row        int
	Similarity float64
}

// FindBestMatch scores query against every row of the snapshot. Both sides
// are L2-normalized, so the dot product is the cosine similarity. Ties go to
// the first row.
func FindBestMatch(query []float32, snap *facestore.Snapshot) (Match, error) {
	if snap == nil || snap.Matrix == nil || snap.Rows() == 0 {
		return Match{IdentityID: NoMatch, Row: -1}, nil
	}

	rows, dim := snap.Matrix.Dims()
	if len(query) != dim {
		return Match{IdentityID: NoMatch, Row: -1}, errors.New(ErrDimensionMismatch).
			Component("matcher").
			Category(errors.CategoryRecognition).
			Context("query_dim", len(query)).
			Context("reference_dim", dim).
			Build()
	}

	q := make([]float64, dim)
	for i, v := range query {
		q[i] = float64(v)
	}

	scores := mat.NewVecDense(rows, nil)
	scores.MulVec(snap.Matrix, mat.NewVecDense(dim, q))

	best := 0
	bestScore := scores.AtVec(0)
	for i := 1; i < rows; i++ {
		if s := scores.AtVec(i); s > bestScore {
			best, bestScore = i, s
		}
	}

	return Match{
		IdentityID: snap.Mapping[best].IdentityID,
		Row:        best,
		Similarity: bestScore,
	}, nil
}

// Normalize scales v to unit length in place and returns it. A zero vector
// is returned unchanged.
func Normalize(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}
	f := make([]float64, len(v))
	for i, x := range v {
		f[i] = float64(x)
	}
	n := mat.Norm(mat.NewVecDense(len(f), f), 2)
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(f[i] / n)
	}
	return v
}
