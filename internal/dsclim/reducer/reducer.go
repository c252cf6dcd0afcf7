// Package reducer implements component B: spatial mean of a 2-D field
// under an optional binary mask, and per-cell time mean/variance.
package reducer

import (
	"math"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
)

// SpatialMean computes the equal-weighted mean of non-missing,
// mask-selected cells of a 2-D field. mask may be nil, meaning every
// cell is selected. Returns the number of cells actually averaged so
// callers can raise NoObservationsInNeighborhood when it is zero.
func SpatialMean(field [][]float64, missing [][]bool, mask [][]bool) (mean float64, count int, err error) {
	if len(field) == 0 {
		return 0, 0, dsclimerr.DimensionMismatch("spatial mean: empty field")
	}
	ny := len(field)
	nx := len(field[0])
	if mask != nil && (len(mask) != ny || (ny > 0 && len(mask[0]) != nx)) {
		return 0, 0, dsclimerr.DimensionMismatch("spatial mean: mask shape %dx%d does not match field shape %dx%d", dim0(mask), dim1(mask), ny, nx)
	}
	if missing != nil && (len(missing) != ny || (ny > 0 && len(missing[0]) != nx)) {
		return 0, 0, dsclimerr.DimensionMismatch("spatial mean: missing-mask shape does not match field shape")
	}

	var sum float64
	for y := 0; y < ny; y++ {
		if len(field[y]) != nx {
			return 0, 0, dsclimerr.DimensionMismatch("spatial mean: ragged field row %d", y)
		}
		for x := 0; x < nx; x++ {
			if mask != nil && !mask[y][x] {
				continue
			}
			if missing != nil && missing[y][x] {
				continue
			}
			sum += field[y][x]
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return sum / float64(count), count, nil
}

// MaskedCovariance computes the masked spatial covariance of two
// co-located 2-D fields (spec §4.G.2, secondary_cov metric).
func MaskedCovariance(a, b [][]float64, mask [][]bool) (float64, error) {
	meanA, countA, err := SpatialMean(a, nil, mask)
	if err != nil {
		return 0, err
	}
	meanB, countB, err := SpatialMean(b, nil, mask)
	if err != nil {
		return 0, err
	}
	if countA == 0 || countB == 0 {
		return 0, dsclimerr.NoObservationsInNeighborhood("masked covariance: no selected cells")
	}

	ny := len(a)
	var sum float64
	var n int
	for y := 0; y < ny; y++ {
		nx := len(a[y])
		for x := 0; x < nx; x++ {
			if mask != nil && !mask[y][x] {
				continue
			}
			sum += (a[y][x] - meanA) * (b[y][x] - meanB)
			n++
		}
	}
	if n == 0 {
		return 0, dsclimerr.NoObservationsInNeighborhood("masked covariance: no selected cells")
	}
	return sum / float64(n), nil
}

// TemporalMeanVariance computes the mean and (population) variance of
// a scalar series restricted to the indices where window is true. Used
// to build per-cell / per-series reference statistics over a window
// such as the control-run ∩ learning-period intersection.
func TemporalMeanVariance(series []float64, window []bool) (mean, variance float64, err error) {
	if len(window) != 0 && len(series) != len(window) {
		return 0, 0, dsclimerr.DimensionMismatch("temporal mean/variance: series length %d != window length %d", len(series), len(window))
	}
	var sum float64
	var n int
	for i, v := range series {
		if window != nil && !window[i] {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, 0, dsclimerr.DimensionMismatch("temporal mean/variance: empty window")
	}
	mean = sum / float64(n)

	var sq float64
	for i, v := range series {
		if window != nil && !window[i] {
			continue
		}
		d := v - mean
		sq += d * d
	}
	variance = sq / float64(n)
	return mean, variance, nil
}

// PerCellMeanVariance computes, for a stack of 2-D fields over time,
// the per-cell mean and variance restricted to the days where window
// is true (spec §4.C "field normalize" reference statistics).
func PerCellMeanVariance(fields [][][]float64, window []bool) (mean, variance [][]float64, err error) {
	if len(fields) == 0 {
		return nil, nil, dsclimerr.DimensionMismatch("per-cell mean/variance: no fields")
	}
	if window != nil && len(window) != len(fields) {
		return nil, nil, dsclimerr.DimensionMismatch("per-cell mean/variance: window length %d != time length %d", len(window), len(fields))
	}
	ny := len(fields[0])
	nx := 0
	if ny > 0 {
		nx = len(fields[0][0])
	}
	mean = make([][]float64, ny)
	variance = make([][]float64, ny)
	for y := 0; y < ny; y++ {
		mean[y] = make([]float64, nx)
		variance[y] = make([]float64, nx)
	}

	n := 0
	for t := range fields {
		if window != nil && !window[t] {
			continue
		}
		n++
		if len(fields[t]) != ny {
			return nil, nil, dsclimerr.DimensionMismatch("per-cell mean/variance: ragged time stack at t=%d", t)
		}
		for y := 0; y < ny; y++ {
			if len(fields[t][y]) != nx {
				return nil, nil, dsclimerr.DimensionMismatch("per-cell mean/variance: ragged row t=%d y=%d", t, y)
			}
			for x := 0; x < nx; x++ {
				mean[y][x] += fields[t][y][x]
			}
		}
	}
	if n == 0 {
		return nil, nil, dsclimerr.DimensionMismatch("per-cell mean/variance: empty window")
	}
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			mean[y][x] /= float64(n)
		}
	}

	for t := range fields {
		if window != nil && !window[t] {
			continue
		}
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				d := fields[t][y][x] - mean[y][x]
				variance[y][x] += d * d
			}
		}
	}
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			variance[y][x] /= float64(n)
		}
	}
	return mean, variance, nil
}

func dim0(m [][]bool) int { return len(m) }
func dim1(m [][]bool) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// StdDev is a small shared helper so callers (normalize, clusters,
// analog) compute standard deviation identically everywhere.
func StdDev(variance float64) float64 {
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}
