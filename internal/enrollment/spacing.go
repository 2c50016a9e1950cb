package enrollment

import (
	"math"

	"github.com/tphakala/faceattend/internal/errors"
)

// EvenSpacing picks k indices out of n spread over the whole range:
// idx_i = round(i*(n-1)/(k-1)). The result is strictly increasing and starts
// at 0 and ends at n-1. When n <= k every index is returned.
func EvenSpacing(n, k int) ([]int, error) {
	if k < 2 {
		return nil, errors.New(ErrInvalidSpacing).
			Component("enrollment").
			Category(errors.CategoryValidation).
			Context("k", k).
			Build()
	}
	if n <= 0 {
		return []int{}, nil
	}
	if n <= k {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	indices := make([]int, k)
	step := float64(n-1) / float64(k-1)
	for i := range indices {
		indices[i] = int(math.Round(float64(i) * step))
	}
	return indices, nil
}
