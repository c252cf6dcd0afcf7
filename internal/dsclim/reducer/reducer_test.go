package reducer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpatialMeanHonorsMaskAndMissing(t *testing.T) {
	field := [][]float64{
		{1, 2},
		{3, 4},
	}
	mask := [][]bool{
		{true, false},
		{true, true},
	}
	missing := [][]bool{
		{false, false},
		{true, false},
	}
	mean, count, err := SpatialMean(field, missing, mask)
	require.NoError(t, err)
	// mask selects (0,0),(1,0),(1,1); missing drops (1,0) -> left with 1 and 4
	require.Equal(t, 2, count)
	require.InDelta(t, 2.5, mean, 1e-9)
}

func TestSpatialMeanRejectsRaggedRows(t *testing.T) {
	field := [][]float64{{1, 2}, {3}}
	_, _, err := SpatialMean(field, nil, nil)
	require.Error(t, err)
}

func TestSpatialMeanReturnsZeroCountWhenFullyMasked(t *testing.T) {
	field := [][]float64{{1, 2}}
	mask := [][]bool{{false, false}}
	mean, count, err := SpatialMean(field, nil, mask)
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.Equal(t, 0.0, mean)
}

func TestMaskedCovarianceOfIdenticalFieldsIsVariance(t *testing.T) {
	a := [][]float64{{1, 2}, {3, 4}}
	cov, err := MaskedCovariance(a, a, nil)
	require.NoError(t, err)
	require.Greater(t, cov, 0.0)
}

func TestMaskedCovarianceOfConstantFieldIsZero(t *testing.T) {
	a := [][]float64{{5, 5}, {5, 5}}
	b := [][]float64{{1, 2}, {3, 4}}
	cov, err := MaskedCovariance(a, b, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.0, cov, 1e-12)
}

func TestTemporalMeanVarianceRestrictsToWindow(t *testing.T) {
	series := []float64{1, 100, 3, 100, 5}
	window := []bool{true, false, true, false, true}
	mean, variance, err := TemporalMeanVariance(series, window)
	require.NoError(t, err)
	require.InDelta(t, 3.0, mean, 1e-9)
	require.InDelta(t, 8.0/3.0, variance, 1e-9)
}

func TestTemporalMeanVarianceRejectsLengthMismatch(t *testing.T) {
	_, _, err := TemporalMeanVariance([]float64{1, 2, 3}, []bool{true, false})
	require.Error(t, err)
}

func TestTemporalMeanVarianceRejectsEmptyWindow(t *testing.T) {
	_, _, err := TemporalMeanVariance([]float64{1, 2}, []bool{false, false})
	require.Error(t, err)
}

func TestPerCellMeanVarianceComputesPerCellStats(t *testing.T) {
	fields := [][][]float64{
		{{1, 2}, {3, 4}},
		{{3, 4}, {5, 6}},
	}
	mean, variance, err := PerCellMeanVariance(fields, nil)
	require.NoError(t, err)
	require.InDelta(t, 2.0, mean[0][0], 1e-9)
	require.InDelta(t, 1.0, variance[0][0], 1e-9)
}

func TestPerCellMeanVarianceRejectsRaggedStack(t *testing.T) {
	fields := [][][]float64{
		{{1, 2}},
		{{1, 2}, {3, 4}},
	}
	_, _, err := PerCellMeanVariance(fields, nil)
	require.Error(t, err)
}

func TestStdDevClampsNegativeVarianceToZero(t *testing.T) {
	require.Equal(t, 0.0, StdDev(-1))
	require.InDelta(t, math.Sqrt(4), StdDev(4), 1e-12)
}
