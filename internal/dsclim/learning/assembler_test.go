package learning

import (
	"math"
	"testing"

	"github.com/cerfacs-go/dsclim/internal/dsclim/regression"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/stretchr/testify/require"
)

// buildSeasonInputs builds a small, fully deterministic season with two
// obviously separated regimes (wet/cold vs dry/warm) over 40 days, one
// anchor point and a secondary field, so the assembled record's
// clusters and regression should recover that structure exactly.
func buildSeasonInputs() SeasonInputs {
	const n = 40
	days := make([]types.Day, n)
	rea := make([][]float64, n)
	obs := make([][]float64, n)
	secondary := make([]float64, n)
	precip := make([][][]float64, n)
	window := make([]bool, n)

	for t := 0; t < n; t++ {
		days[t] = types.Day{Year: 2000, Month: 1, Day: (t % 28) + 1, Index: t}
		window[t] = true
		regimeA := t%2 == 0
		f := float64(t)
		if regimeA {
			rea[t] = []float64{5 + 0.01*math.Sin(f), 0.5 * math.Cos(f)}
			obs[t] = []float64{5 + 0.01*math.Cos(f), 0.01 * math.Sin(f)}
			secondary[t] = -2 + 0.01*math.Sin(f)
			precip[t] = [][]float64{{9, 9}, {9, 9}}
		} else {
			rea[t] = []float64{-5 + 0.01*math.Sin(f), -0.5 * math.Cos(f)}
			obs[t] = []float64{-5 + 0.01*math.Cos(f), -0.01 * math.Sin(f)}
			secondary[t] = 8 + 0.01*math.Sin(f)
			precip[t] = [][]float64{{1, 1}, {1, 1}}
		}
	}

	return SeasonInputs{
		Season: types.Season{
			Name:      "test",
			Months:    map[int]bool{1: true},
			NClusters: 2,
			NReg:      2,
			NDaysWindow:  0,
			NDaysChoices: 1,
		},
		Days:               days,
		ReanalysisPC:       rea,
		ReanalysisSingular: []float64{2, 1},
		ObsPC:              obs,
		ObsSingular:        []float64{2, 1},
		ReferenceWindow:    window,
		AnchorPoints:       []regression.AnchorPoint{{Lon: 0, Lat: 0}},
		GridLon:            [][]float64{{0, 0.01}, {0, 0.01}},
		GridLat:            [][]float64{{0, 0}, {0.01, 0.01}},
		DistThreshMeters:   10000,
		PrecipField:        precip,
		SecondaryRaw:       secondary,
		KMeansRestarts:     4,
		KMeansSeed:         11,
	}
}

func TestAssembleSeparatesRegimesAndFitsRegression(t *testing.T) {
	in := buildSeasonInputs()
	sl, pcVar, _, err := Assemble(in, nil)
	require.NoError(t, err)
	require.Len(t, pcVar, 2)
	require.Len(t, sl.ClassClusters, 40)

	classA := sl.ClassClusters[0]
	classB := sl.ClassClusters[1]
	require.NotEqual(t, classA, classB)
	for day := 0; day < 40; day++ {
		if day%2 == 0 {
			require.Equal(t, classA, sl.ClassClusters[day])
		} else {
			require.Equal(t, classB, sl.ClassClusters[day])
		}
	}

	require.Len(t, sl.PrecipRegCoef, 1)
	require.Len(t, sl.PrecipRegCoef[0], 3) // intercept + 2 clusters
}

func TestVerifyCacheRejectsShapeMismatch(t *testing.T) {
	rec := &types.LearningRecord{NEof: 3, NPts: 2, Seasons: map[string]*types.SeasonLearning{"winter": {}}}
	require.NoError(t, VerifyCache(rec, 3, 2, []string{"winter"}))
	require.Error(t, VerifyCache(rec, 4, 2, []string{"winter"}))
	require.Error(t, VerifyCache(rec, 3, 2, []string{"winter", "summer"}))
}

func TestMergedDayCoverageDetectsOverlap(t *testing.T) {
	rec := &types.LearningRecord{Seasons: map[string]*types.SeasonLearning{
		"a": {Time: []types.Day{{Index: 0}, {Index: 1}}},
		"b": {Time: []types.Day{{Index: 1}, {Index: 2}}},
	}}
	require.Error(t, MergedDayCoverage(rec))
}
