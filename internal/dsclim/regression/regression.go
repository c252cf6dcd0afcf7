// Package regression implements component E: per-anchor-point linear
// regression of precipitation on the cluster-distance vector
// (optionally extended with the secondary index), and its use for
// prediction during downscaling.
package regression

import (
	"math"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
)

// Fitted holds one anchor point's OLS coefficients: Coef[0] is the
// intercept alpha, Coef[1..NClusters] are beta for each cluster
// distance, and (if NReg = NClusters+1) Coef[NClusters+1] is beta for
// the secondary index.
type Fitted struct {
	Coef []float64
}

// Fit runs OLS for one anchor point: y_t = alpha + beta . x_t, where
// x_t is the concatenation of the cluster-distance vector and
// (optionally) the normalized secondary index. Only non-missing
// timesteps are used. Fails with InsufficientSamples if fewer than
// nReg+1 non-missing timesteps exist (spec §4.E).
func Fit(y []float64, missing []bool, distances [][]float64, secondary []float64, nReg int) (*Fitted, error) {
	n := len(y)
	if len(distances) != n {
		return nil, dsclimerr.DimensionMismatch("regression fit: y length %d != distances length %d", n, len(distances))
	}
	if secondary != nil && len(secondary) != n {
		return nil, dsclimerr.DimensionMismatch("regression fit: secondary length %d != y length %d", len(secondary), n)
	}

	var rows [][]float64
	var targets []float64
	for t := 0; t < n; t++ {
		if missing != nil && missing[t] {
			continue
		}
		x := make([]float64, nReg+1)
		x[0] = 1
		copy(x[1:1+len(distances[t])], distances[t])
		if secondary != nil {
			x[nReg] = secondary[t]
		}
		rows = append(rows, x)
		targets = append(targets, y[t])
	}

	if len(rows) < nReg+1 {
		return nil, dsclimerr.InsufficientSamples("regression fit: %d non-missing samples, need at least %d", len(rows), nReg+1)
	}

	coef, err := olsNormalEquations(rows, targets)
	if err != nil {
		return nil, err
	}
	return &Fitted{Coef: coef}, nil
}

// Predict evaluates p_hat = alpha + sum_c beta[c]*d[c] (+ beta_sec*x)
// for one day's cluster-distance vector and optional secondary index.
func (f *Fitted) Predict(distances []float64, secondary *float64) (float64, error) {
	nClusters := len(f.Coef) - 1
	if secondary != nil {
		nClusters--
	}
	if len(distances) != nClusters {
		return 0, dsclimerr.DimensionMismatch("regression predict: %d distances, expected %d", len(distances), nClusters)
	}
	p := f.Coef[0]
	for c, d := range distances {
		p += f.Coef[1+c] * d
	}
	if secondary != nil {
		p += f.Coef[len(f.Coef)-1] * (*secondary)
	}
	return p, nil
}

// olsNormalEquations solves (X^T X) beta = X^T y via Gauss-Jordan
// elimination on the augmented normal-equations matrix. Small, dense,
// and exact to numerical precision for the anchor-point regression
// sizes this pipeline uses (a handful of clusters plus an intercept).
func olsNormalEquations(rows [][]float64, y []float64) ([]float64, error) {
	p := len(rows[0])
	xtx := make([][]float64, p)
	xty := make([]float64, p)
	for i := range xtx {
		xtx[i] = make([]float64, p)
	}
	for t, row := range rows {
		for i := 0; i < p; i++ {
			xty[i] += row[i] * y[t]
			for j := 0; j < p; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}

	return solveLinearSystem(xtx, xty)
}

// solveLinearSystem solves Ax=b via Gauss-Jordan elimination with
// partial pivoting.
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(a)
	aug := make([][]float64, n)
	for i := range a {
		aug[i] = append(append([]float64(nil), a[i]...), b[i])
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug[r][col]); v > best {
				best = v
				pivot = r
			}
		}
		if best < 1e-12 {
			return nil, dsclimerr.InsufficientSamples("regression fit: singular design matrix (collinear regressors)")
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for j := col; j <= n; j++ {
			aug[col][j] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for j := col; j <= n; j++ {
				aug[r][j] -= factor * aug[col][j]
			}
		}
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = aug[i][n]
	}
	return x, nil
}
