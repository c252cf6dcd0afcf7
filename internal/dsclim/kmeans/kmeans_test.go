package kmeans

import (
	"math"
	"testing"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/stretchr/testify/require"
)

// twoBlobs builds two well-separated but noisy clusters plus a handful
// of points straddling the midline. No point sits exactly at its
// cluster's mean, so the first centroid update always moves the seed
// centroids away from the seed points.
func twoBlobs() [][]float64 {
	pts := [][]float64{}
	for i := 0; i < 20; i++ {
		f := float64(i)
		pts = append(pts, []float64{3*math.Sin(f) + 0, 3 * math.Cos(f*1.3)})
	}
	for i := 0; i < 20; i++ {
		f := float64(i)
		pts = append(pts, []float64{3*math.Sin(f) + 40, 3*math.Cos(f*1.3) + 40})
	}
	// straddling points near the midline, deliberately ambiguous
	for i := 0; i < 6; i++ {
		f := float64(i)
		pts = append(pts, []float64{20 + 2*math.Sin(f), 20 + 2*math.Cos(f)})
	}
	return pts
}

func TestFitSeparatesBlobs(t *testing.T) {
	pts := twoBlobs()
	res, err := Fit(pts, Config{K: 2, Restarts: 4, Seed: 7}, nil)
	require.NoError(t, err)
	require.Len(t, res.Centroids, 2)

	a := res.Assign[0]
	for i := 0; i < 20; i++ {
		require.Equal(t, a, res.Assign[i], "first blob must share a cluster")
	}
	b := res.Assign[20]
	require.NotEqual(t, a, b, "the two well-separated blobs must land in different clusters")
	for i := 20; i < 40; i++ {
		require.Equal(t, b, res.Assign[i], "second blob must share a cluster")
	}
}

func TestFitReproducibleWithSameSeed(t *testing.T) {
	pts := twoBlobs()
	r1, err := Fit(pts, Config{K: 2, Restarts: 3, Seed: 42}, nil)
	require.NoError(t, err)
	r2, err := Fit(pts, Config{K: 2, Restarts: 3, Seed: 42}, nil)
	require.NoError(t, err)
	require.Equal(t, r1.Assign, r2.Assign)
	require.Equal(t, r1.Centroids, r2.Centroids)
}

func TestFitRejectsTooManyClusters(t *testing.T) {
	_, err := Fit([][]float64{{0, 0}, {1, 1}}, Config{K: 5}, nil)
	require.Error(t, err)
	class, ok := dsclimerr.As(err)
	require.True(t, ok)
	require.Equal(t, dsclimerr.ClassConfiguration, class)
}

func TestFitDetectsDegenerateSingleIterationConvergence(t *testing.T) {
	// Points are exactly on two well-separated singleton centroids: the
	// very first assignment is already stable after one update.
	pts := [][]float64{{0, 0}, {100, 100}}
	_, err := Fit(pts, Config{K: 2, Restarts: 1, Seed: 1}, nil)
	require.Error(t, err)
	class, ok := dsclimerr.As(err)
	require.True(t, ok)
	require.Equal(t, dsclimerr.ClassDegenerateClustering, class)
}
