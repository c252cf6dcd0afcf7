// Package delta implements component H: the temperature (or other
// secondary-field) correction for each downscaled day, derived from
// its chosen analog and every first-selection candidate (spec §4.H).
package delta

import (
	"math"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// Compute fills in Delta and CandidateDeltas on every record of recs,
// given the model's normalized secondary index xMdl (aligned with
// DownscaledDay order), the learning normalized secondary index xLrn
// (aligned with LearnIndex), and the model/learning control-run
// variances of the secondary field.
//
// delta[t] = (x_mdl[t] * sqrt(V_mdl)) - (x_lrn[analog[t]] * sqrt(V_lrn))
func Compute(recs []types.AnalogRecord, xMdl, xLrn []float64, vMdl, vLrn float64) ([]types.AnalogRecord, error) {
	if len(recs) != len(xMdl) {
		return nil, dsclimerr.DimensionMismatch("delta engine: %d records but %d model secondary values", len(recs), len(xMdl))
	}
	sqrtVMdl := math.Sqrt(math.Max(vMdl, 0))
	sqrtVLrn := math.Sqrt(math.Max(vLrn, 0))

	out := make([]types.AnalogRecord, len(recs))
	for t, rec := range recs {
		if rec.ChosenAnalog.LearnIndex >= len(xLrn) {
			return nil, dsclimerr.DimensionMismatch("delta engine: analog learn index %d out of range (n=%d)", rec.ChosenAnalog.LearnIndex, len(xLrn))
		}
		rec.Delta = physicalDelta(xMdl[t], sqrtVMdl, xLrn[rec.ChosenAnalog.LearnIndex], sqrtVLrn)

		rec.CandidateDeltas = make([]float64, len(rec.Candidates))
		for i, c := range rec.Candidates {
			if c.LearnIndex >= len(xLrn) {
				return nil, dsclimerr.DimensionMismatch("delta engine: candidate learn index %d out of range (n=%d)", c.LearnIndex, len(xLrn))
			}
			rec.CandidateDeltas[i] = physicalDelta(xMdl[t], sqrtVMdl, xLrn[c.LearnIndex], sqrtVLrn)
		}
		out[t] = rec
	}
	return out, nil
}

func physicalDelta(xMdl, sqrtVMdl, xLrn, sqrtVLrn float64) float64 {
	return (xMdl * sqrtVMdl) - (xLrn * sqrtVLrn)
}
