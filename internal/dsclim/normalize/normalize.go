// Package normalize implements component C: first-EOF reference
// variance, PC normalization against it, and field/per-cell
// normalization.
package normalize

import (
	"math"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/reducer"
)

// ScalePC multiplies each day's raw PC vector by the corresponding EOF
// singular value, in place semantics (returns a new slice), per spec
// §4.F step 3 ("normalizing each PC by its first singular value").
func ScalePC(raw [][]float64, singular []float64) ([][]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	neof := len(raw[0])
	if len(singular) != neof {
		return nil, dsclimerr.DimensionMismatch("scale PC: %d singular values for %d EOFs", len(singular), neof)
	}
	out := make([][]float64, len(raw))
	for t, row := range raw {
		if len(row) != neof {
			return nil, dsclimerr.DimensionMismatch("scale PC: ragged row at t=%d", t)
		}
		scaled := make([]float64, neof)
		for k := 0; k < neof; k++ {
			scaled[k] = row[k] * singular[k]
		}
		out[t] = scaled
	}
	return out, nil
}

// ReferenceVariance computes V1, the empirical variance of the
// (already singular-value-scaled) first EOF component over the
// reference window (spec §4.C).
func ReferenceVariance(scaled [][]float64, window []bool) (float64, error) {
	if len(scaled) == 0 {
		return 0, dsclimerr.DimensionMismatch("reference variance: empty series")
	}
	first := make([]float64, len(scaled))
	for t, row := range scaled {
		if len(row) == 0 {
			return 0, dsclimerr.DimensionMismatch("reference variance: empty row at t=%d", t)
		}
		first[t] = row[0]
	}
	_, v1, err := reducer.TemporalMeanVariance(first, window)
	if err != nil {
		return 0, err
	}
	return v1, nil
}

// PcNormalizedVar computes, for every EOF k, variance(scaled_pc[k]) /
// V1 over the reference window (spec §4.C). This is the one-step form
// of the Open Question in spec §9: computing it this way is
// arithmetically equivalent to normalizing the series by sqrt(V1)
// first and then taking its variance.
func PcNormalizedVar(scaled [][]float64, window []bool, v1 float64) ([]float64, error) {
	if len(scaled) == 0 {
		return nil, dsclimerr.DimensionMismatch("pc normalized var: empty series")
	}
	if v1 == 0 {
		return nil, dsclimerr.DimensionMismatch("pc normalized var: reference variance is zero")
	}
	neof := len(scaled[0])
	out := make([]float64, neof)
	for k := 0; k < neof; k++ {
		col := make([]float64, len(scaled))
		for t, row := range scaled {
			if len(row) != neof {
				return nil, dsclimerr.DimensionMismatch("pc normalized var: ragged row at t=%d", t)
			}
			col[t] = row[k]
		}
		_, vk, err := reducer.TemporalMeanVariance(col, window)
		if err != nil {
			return nil, err
		}
		out[k] = vk / v1
	}
	return out, nil
}

// NormalizePC normalizes raw (unscaled) PC values outside the
// reference window by dividing by sqrt(V1). No per-EOF scaling is
// applied here — per spec §4.C, per-EOF scaling only enters through
// pc_normalized_var where the cluster metric is evaluated.
func NormalizePC(raw [][]float64, v1 float64) ([][]float64, error) {
	if v1 <= 0 {
		return nil, dsclimerr.DimensionMismatch("normalize PC: reference variance must be positive, got %v", v1)
	}
	sd := math.Sqrt(v1)
	out := make([][]float64, len(raw))
	for t, row := range raw {
		u := make([]float64, len(row))
		for k, v := range row {
			u[k] = v / sd
		}
		out[t] = u
	}
	return out, nil
}

// Field normalizes a field under per-cell reference (mean, variance):
// (F - mean) / sqrt(variance).
func Field(field [][]float64, mean, variance [][]float64) ([][]float64, error) {
	if len(field) != len(mean) || len(field) != len(variance) {
		return nil, dsclimerr.DimensionMismatch("field normalize: shape mismatch")
	}
	out := make([][]float64, len(field))
	for y := range field {
		if len(field[y]) != len(mean[y]) || len(field[y]) != len(variance[y]) {
			return nil, dsclimerr.DimensionMismatch("field normalize: ragged row %d", y)
		}
		row := make([]float64, len(field[y]))
		for x := range field[y] {
			sd := reducer.StdDev(variance[y][x])
			if sd == 0 {
				row[x] = 0
				continue
			}
			row[x] = (field[y][x] - mean[y][x]) / sd
		}
		out[y] = row
	}
	return out, nil
}
