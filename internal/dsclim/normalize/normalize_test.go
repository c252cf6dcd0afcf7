package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalePCMultipliesByPerEOFSingularValue(t *testing.T) {
	raw := [][]float64{
		{1, 2},
		{3, 4},
	}
	scaled, err := ScalePC(raw, []float64{2, 0.5})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{2, 1}, {6, 2}}, scaled)
}

func TestScalePCRejectsSingularValueCountMismatch(t *testing.T) {
	_, err := ScalePC([][]float64{{1, 2}}, []float64{1})
	require.Error(t, err)
}

func TestScalePCRejectsRaggedRow(t *testing.T) {
	_, err := ScalePC([][]float64{{1, 2}, {1}}, []float64{1, 1})
	require.Error(t, err)
}

func TestReferenceVarianceUsesFirstComponentOnly(t *testing.T) {
	scaled := [][]float64{
		{1, 99},
		{3, 99},
		{5, 99},
	}
	window := []bool{true, true, true}
	v1, err := ReferenceVariance(scaled, window)
	require.NoError(t, err)
	// mean=3, variance = ((2^2)+(0^2)+(2^2))/3 = 8/3
	require.InDelta(t, 8.0/3.0, v1, 1e-9)
}

func TestReferenceVarianceRejectsEmptySeries(t *testing.T) {
	_, err := ReferenceVariance(nil, nil)
	require.Error(t, err)
}

func TestPcNormalizedVarDividesEachEofVarianceByV1(t *testing.T) {
	scaled := [][]float64{
		{1, 2},
		{3, 4},
		{5, 6},
	}
	window := []bool{true, true, true}
	out, err := PcNormalizedVar(scaled, window, 2.0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	// col0 variance = 8/3, col1 variance = 8/3 -> both divided by v1=2
	require.InDelta(t, (8.0/3.0)/2.0, out[0], 1e-9)
	require.InDelta(t, (8.0/3.0)/2.0, out[1], 1e-9)
}

func TestPcNormalizedVarRejectsZeroReferenceVariance(t *testing.T) {
	_, err := PcNormalizedVar([][]float64{{1, 2}}, []bool{true}, 0)
	require.Error(t, err)
}

func TestNormalizePCDividesBySqrtV1(t *testing.T) {
	raw := [][]float64{{4, 8}}
	out, err := NormalizePC(raw, 4.0)
	require.NoError(t, err)
	require.InDelta(t, 2.0, out[0][0], 1e-9)
	require.InDelta(t, 4.0, out[0][1], 1e-9)
}

func TestNormalizePCRejectsNonPositiveReferenceVariance(t *testing.T) {
	_, err := NormalizePC([][]float64{{1}}, 0)
	require.Error(t, err)
	_, err = NormalizePC([][]float64{{1}}, -1)
	require.Error(t, err)
}

func TestFieldNormalizesAgainstPerCellMeanAndVariance(t *testing.T) {
	field := [][]float64{{5, 10}}
	mean := [][]float64{{3, 8}}
	variance := [][]float64{{4, 4}}
	out, err := Field(field, mean, variance)
	require.NoError(t, err)
	require.InDelta(t, 1.0, out[0][0], 1e-9)
	require.InDelta(t, 1.0, out[0][1], 1e-9)
}

func TestFieldTreatsZeroVarianceCellAsZero(t *testing.T) {
	field := [][]float64{{5}}
	mean := [][]float64{{3}}
	variance := [][]float64{{0}}
	out, err := Field(field, mean, variance)
	require.NoError(t, err)
	require.Equal(t, 0.0, out[0][0])
}

func TestFieldRejectsShapeMismatch(t *testing.T) {
	_, err := Field([][]float64{{1, 2}}, [][]float64{{1}}, [][]float64{{1, 2}})
	require.Error(t, err)
}
