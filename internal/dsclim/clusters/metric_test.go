package clusters

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

func TestRawDistanceAppliesPerEOFWeighting(t *testing.T) {
	u := []float64{1, 0}
	centroid := []float64{0, 0}
	sigma2 := []float64{4, 1}
	d, err := RawDistance(u, centroid, sigma2)
	require.NoError(t, err)
	require.InDelta(t, 2.0, d, 1e-9) // sqrt(4*1^2)
}

func TestRawDistanceRejectsLengthMismatch(t *testing.T) {
	_, err := RawDistance([]float64{1, 2}, []float64{1}, []float64{1, 1})
	require.Error(t, err)
}

func TestRawDistanceSeriesComputesPerClusterDistances(t *testing.T) {
	u := [][]float64{
		{1, 0},
		{0, 1},
	}
	w := types.Weights{
		NClusters: 2,
		NEof:      2,
		Centroids: [][]float64{
			{0, 0},
			{1, 1},
		},
	}
	sigma2 := []float64{1, 1}
	out, err := RawDistanceSeries(u, w, sigma2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.InDelta(t, 1.0, out[0][0], 1e-9)
	require.InDelta(t, 1.0, out[0][1], 1e-9) // sqrt(1*0^2 + 1*1^2)
}

func TestReferenceStatsRestrictsToWindow(t *testing.T) {
	raw := [][]float64{
		{1, 1},
		{100, 100},
		{3, 3},
	}
	window := []bool{true, false, true}
	mean, variance, err := ReferenceStats(raw, 2, window)
	require.NoError(t, err)
	require.InDelta(t, 2.0, mean[0], 1e-9)
	require.InDelta(t, 1.0, variance[0], 1e-9)
}

func TestReferenceStatsRejectsRaggedRow(t *testing.T) {
	raw := [][]float64{{1, 1}, {1}}
	_, _, err := ReferenceStats(raw, 2, []bool{true, true})
	require.Error(t, err)
}

func TestNormalizeStandardizesAgainstMeanAndVariance(t *testing.T) {
	raw := [][]float64{{5, 10}}
	mean := []float64{3, 8}
	variance := []float64{4, 4}
	out, err := Normalize(raw, mean, variance)
	require.NoError(t, err)
	require.InDelta(t, 1.0, out[0][0], 1e-9)
	require.InDelta(t, 1.0, out[0][1], 1e-9)
}

func TestNormalizeTreatsZeroVarianceClusterAsZero(t *testing.T) {
	raw := [][]float64{{5}}
	mean := []float64{3}
	variance := []float64{0}
	out, err := Normalize(raw, mean, variance)
	require.NoError(t, err)
	require.Equal(t, 0.0, out[0][0])
}

func TestClassifyPicksArgMinBreakingTiesBySmallestIndex(t *testing.T) {
	normalized := [][]float64{
		{0.5, 0.1, 0.9},
		{1.0, 1.0, 2.0},
	}
	got := Classify(normalized)
	require.Equal(t, types.DayClassification{1, 0}, got)
}
