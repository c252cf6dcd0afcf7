// Package clusters implements component D: weighted PC→cluster
// distance with per-EOF normalization, distance reference statistics,
// and day-to-cluster classification.
package clusters

import (
	"math"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/reducer"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// RawDistance computes D(u, centroid; sigma2), the weighted-squared
// Euclidean distance between a normalized PC vector and a cluster
// centroid, weighted per EOF by sigma2, with the square root taken at
// the end (spec §4.D).
func RawDistance(u, centroid, sigma2 []float64) (float64, error) {
	if len(u) != len(centroid) || len(u) != len(sigma2) {
		return 0, dsclimerr.DimensionMismatch("cluster distance: length mismatch u=%d centroid=%d sigma2=%d", len(u), len(centroid), len(sigma2))
	}
	var sum float64
	for k := range u {
		diff := u[k] - centroid[k]
		sum += sigma2[k] * diff * diff
	}
	return math.Sqrt(sum), nil
}

// RawDistanceSeries computes RawDistance for every day against every
// cluster centroid: D[t][c].
func RawDistanceSeries(u [][]float64, w types.Weights, sigma2 []float64) ([][]float64, error) {
	out := make([][]float64, len(u))
	for t, row := range u {
		d := make([]float64, w.NClusters)
		for c := 0; c < w.NClusters; c++ {
			v, err := RawDistance(row, w.Centroids[c], sigma2)
			if err != nil {
				return nil, err
			}
			d[c] = v
		}
		out[t] = d
	}
	return out, nil
}

// ReferenceStats computes, per cluster, the mean and variance of the
// raw (unnormalized) distance over the model-run ∩ learning-period
// reference window (spec §4.D).
func ReferenceStats(raw [][]float64, nClusters int, window []bool) (mean, variance []float64, err error) {
	mean = make([]float64, nClusters)
	variance = make([]float64, nClusters)
	for c := 0; c < nClusters; c++ {
		col := make([]float64, len(raw))
		for t, row := range raw {
			if len(row) != nClusters {
				return nil, nil, dsclimerr.DimensionMismatch("cluster reference stats: ragged row at t=%d", t)
			}
			col[t] = row[c]
		}
		m, v, e := reducer.TemporalMeanVariance(col, window)
		if e != nil {
			return nil, nil, e
		}
		mean[c] = m
		variance[c] = v
	}
	return mean, variance, nil
}

// Normalize standardizes a raw distance series per cluster against the
// given reference mean/variance: (D - mean)/sqrt(variance).
func Normalize(raw [][]float64, mean, variance []float64) ([][]float64, error) {
	nClusters := len(mean)
	out := make([][]float64, len(raw))
	for t, row := range raw {
		if len(row) != nClusters {
			return nil, dsclimerr.DimensionMismatch("cluster normalize: ragged row at t=%d", t)
		}
		d := make([]float64, nClusters)
		for c := 0; c < nClusters; c++ {
			sd := reducer.StdDev(variance[c])
			if sd == 0 {
				d[c] = 0
				continue
			}
			d[c] = (row[c] - mean[c]) / sd
		}
		out[t] = d
	}
	return out, nil
}

// Classify returns, for every day, the arg-min cluster index (ties
// broken by smallest index — spec §4.D).
func Classify(normalized [][]float64) types.DayClassification {
	out := make(types.DayClassification, len(normalized))
	for t, row := range normalized {
		best := 0
		bestV := math.Inf(1)
		for c, v := range row {
			if v < bestV {
				bestV = v
				best = c
			}
		}
		out[t] = best
	}
	return out
}
