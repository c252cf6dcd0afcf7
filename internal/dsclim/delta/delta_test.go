package delta

import (
	"testing"

	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/stretchr/testify/require"
)

func TestComputeMatchesFormula(t *testing.T) {
	recs := []types.AnalogRecord{
		{ChosenAnalog: types.AnalogCandidate{LearnIndex: 1}, Candidates: []types.AnalogCandidate{{LearnIndex: 1}, {LearnIndex: 2}}},
	}
	xMdl := []float64{2.0}
	xLrn := []float64{0, 1.5, -0.5}
	vMdl, vLrn := 4.0, 9.0 // sqrt = 2, 3

	out, err := Compute(recs, xMdl, xLrn, vMdl, vLrn)
	require.NoError(t, err)
	require.InDelta(t, (2.0*2)-(1.5*3), out[0].Delta, 1e-9)
	require.InDelta(t, (2.0*2)-(1.5*3), out[0].CandidateDeltas[0], 1e-9)
	require.InDelta(t, (2.0*2)-(-0.5*3), out[0].CandidateDeltas[1], 1e-9)
}

func TestComputeRejectsOutOfRangeLearnIndex(t *testing.T) {
	recs := []types.AnalogRecord{
		{ChosenAnalog: types.AnalogCandidate{LearnIndex: 5}},
	}
	_, err := Compute(recs, []float64{1}, []float64{0, 1}, 1, 1)
	require.Error(t, err)
}
