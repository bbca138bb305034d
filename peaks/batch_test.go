package peaks

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestExtractAll(t *testing.T) {
	s := icosahedron()

	odfs := make([][]float64, 20)
	for i := range odfs {
		dir := s.Vertices[i%len(s.Vertices)]
		odfs[i] = sampleOn(s, func(v r3.Vec) float64 {
			return math.Exp(4 * (r3.Dot(v, dir) - 1))
		})
	}
	odfs[5] = sampleOn(s, func(r3.Vec) float64 { return 1 })

	for _, workers := range []int{0, 1, 3} {
		results, err := ExtractAll(context.Background(), odfs, s, DefaultParams(), workers)
		require.NoError(t, err)
		require.Len(t, results, len(odfs))

		for i, odf := range odfs {
			want, err := PeakDirections(odf, s, DefaultParams())
			require.NoError(t, err)
			assert.Equal(t, want, results[i], "sample %d workers %d", i, workers)
		}
		assert.Equal(t, 0, results[5].Len())
	}
}

func TestExtractAll_Error(t *testing.T) {
	s := octahedron()
	odfs := [][]float64{
		{1, 1, 1, 1, 2, 1},
		{1, 1, 1, 1, math.NaN(), 1},
	}

	_, err := ExtractAll(context.Background(), odfs, s, DefaultParams(), 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNaN)
	assert.Contains(t, err.Error(), "sample 1")
}

func TestExtractAll_Canceled(t *testing.T) {
	s := octahedron()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExtractAll(ctx, [][]float64{{1, 1, 1, 1, 2, 1}}, s, DefaultParams(), 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractAll_Empty(t *testing.T) {
	results, err := ExtractAll(context.Background(), nil, octahedron(), DefaultParams(), 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}
