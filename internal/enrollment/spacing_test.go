package enrollment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvenSpacing47Into20(t *testing.T) {
	t.Parallel()

	idx, err := EvenSpacing(47, 20)
	require.NoError(t, err)
	require.Len(t, idx, 20)
	assert.Equal(t, 0, idx[0])
	assert.Equal(t, 46, idx[len(idx)-1])

	maxGap := int(math.Ceil(46.0/19.0)) + 1
	for i := 1; i < len(idx); i++ {
		gap := idx[i] - idx[i-1]
		assert.Positive(t, gap, "strictly increasing at %d", i)
		assert.LessOrEqual(t, gap, maxGap, "gap at %d", i)
	}
}

func TestEvenSpacingCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n, k int
		want []int
	}{
		{"fewer than budget", 3, 20, []int{0, 1, 2}},
		{"equal to budget", 4, 4, []int{0, 1, 2, 3}},
		{"empty", 0, 5, []int{}},
		{"two of five", 5, 2, []int{0, 4}},
		{"rounds to nearest", 10, 4, []int{0, 3, 6, 9}},
		{"three of six", 6, 3, []int{0, 3, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := EvenSpacing(tt.n, tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvenSpacingRejectsSmallBudget(t *testing.T) {
	t.Parallel()

	for _, k := range []int{-1, 0, 1} {
		_, err := EvenSpacing(10, k)
		require.ErrorIs(t, err, ErrInvalidSpacing)
	}
}
