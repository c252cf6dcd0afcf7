package regression

import (
	"testing"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/stretchr/testify/require"
)

func TestFitRecoversLinearRelationship(t *testing.T) {
	// y = 2 + 3*d0 - 1*d1, exact, noiseless.
	var y []float64
	var dist [][]float64
	for i := 0; i < 10; i++ {
		d0 := float64(i)
		d1 := float64(i*i) * 0.5
		dist = append(dist, []float64{d0, d1})
		y = append(y, 2+3*d0-1*d1)
	}

	fit, err := Fit(y, nil, dist, nil, 2)
	require.NoError(t, err)
	require.InDelta(t, 2.0, fit.Coef[0], 1e-8)
	require.InDelta(t, 3.0, fit.Coef[1], 1e-8)
	require.InDelta(t, -1.0, fit.Coef[2], 1e-8)

	p, err := fit.Predict([]float64{4, 2}, nil)
	require.NoError(t, err)
	require.InDelta(t, 2+3*4-1*2, p, 1e-8)
}

func TestFitWithSecondaryIndex(t *testing.T) {
	var y []float64
	var dist [][]float64
	var sec []float64
	for i := 0; i < 10; i++ {
		d0 := float64(i)
		s := float64(i*i) * 0.1
		dist = append(dist, []float64{d0})
		sec = append(sec, s)
		y = append(y, 1+2*d0+5*s)
	}
	fit, err := Fit(y, nil, dist, sec, 2)
	require.NoError(t, err)
	require.InDelta(t, 1.0, fit.Coef[0], 1e-6)
	require.InDelta(t, 2.0, fit.Coef[1], 1e-6)
	require.InDelta(t, 5.0, fit.Coef[2], 1e-6)
}

func TestFitInsufficientSamples(t *testing.T) {
	y := []float64{1, 2}
	dist := [][]float64{{1}, {2}}
	_, err := Fit(y, nil, dist, nil, 2)
	require.Error(t, err)
	class, ok := dsclimerr.As(err)
	require.True(t, ok)
	require.Equal(t, dsclimerr.ClassInsufficientSamples, class)
}

func TestFitSkipsMissingSamples(t *testing.T) {
	y := []float64{100, 2, 4, 6, 8, 10}
	missing := []bool{true, false, false, false, false, false}
	dist := [][]float64{{99}, {1}, {2}, {3}, {4}, {5}}
	fit, err := Fit(y, missing, dist, nil, 1)
	require.NoError(t, err)
	require.InDelta(t, 0.0, fit.Coef[0], 1e-8)
	require.InDelta(t, 2.0, fit.Coef[1], 1e-8)
}

func TestPrecipIndexFromFieldNoObservations(t *testing.T) {
	field := [][]float64{{1, 2}, {3, 4}}
	mask := [][]bool{{false, false}, {false, false}}
	_, _, err := PrecipIndexFromField(field, nil, mask)
	require.Error(t, err)
	class, ok := dsclimerr.As(err)
	require.True(t, ok)
	require.Equal(t, dsclimerr.ClassNoObservationsInNeighborhood, class)
}

func TestPrecipIndexFromFieldSqrtOfMean(t *testing.T) {
	field := [][]float64{{4, 9}, {16, 25}}
	mask := [][]bool{{true, true}, {false, false}}
	v, count, err := PrecipIndexFromField(field, nil, mask)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.InDelta(t, 2.5495097567963922, v, 1e-9) // sqrt((4+9)/2)
}

func TestNeighborhoodMaskDistanceThreshold(t *testing.T) {
	point := AnchorPoint{Lon: 0, Lat: 0}
	lon := [][]float64{{0, 10}}
	lat := [][]float64{{0, 0}}
	mask, count, err := NeighborhoodMask(point, lon, lat, 50000)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.True(t, mask[0][0])
	require.False(t, mask[0][1])
}
