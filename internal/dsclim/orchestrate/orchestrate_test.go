package orchestrate

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cerfacs-go/dsclim/internal/dsclim/emit"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning/learningstore"
	"github.com/cerfacs-go/dsclim/internal/dsclim/regression"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// buildPlan constructs one season with two obviously separated regimes
// over a 40-day learning period and a 10-day downscaling period that
// revisits both regimes, mirroring the fixture the learning assembler's
// own tests use so a mismatch between the two packages' expectations
// would show up here.
func buildPlan() SeasonPlan {
	season := types.Season{
		Name:         "test",
		Months:       map[int]bool{1: true},
		NClusters:    2,
		NReg:         2,
		NDaysWindow:  366,
		NDaysChoices: 3,
	}

	const nLearn = 40
	learnDays := make([]types.Day, nLearn)
	rea := make([][]float64, nLearn)
	obs := make([][]float64, nLearn)
	precip := make([][][]float64, nLearn)
	window := make([]bool, nLearn)

	for t := 0; t < nLearn; t++ {
		learnDays[t] = types.Day{Year: 2000, Month: 1, Day: (t % 28) + 1, Index: t}
		window[t] = true
		f := float64(t)
		if t%2 == 0 {
			rea[t] = []float64{5 + 0.01*math.Sin(f), 0.5 * math.Cos(f)}
			obs[t] = []float64{5 + 0.01*math.Cos(f), 0.01 * math.Sin(f)}
			precip[t] = [][]float64{{9, 9}, {9, 9}}
		} else {
			rea[t] = []float64{-5 + 0.01*math.Sin(f), -0.5 * math.Cos(f)}
			obs[t] = []float64{-5 + 0.01*math.Cos(f), -0.01 * math.Sin(f)}
			precip[t] = [][]float64{{1, 1}, {1, 1}}
		}
	}

	learningInputs := learning.SeasonInputs{
		Days:               learnDays,
		ReanalysisPC:       rea,
		ReanalysisSingular: []float64{2, 1},
		ObsPC:              obs,
		ObsSingular:        []float64{2, 1},
		ReferenceWindow:    window,
		GridLon:            [][]float64{{0, 0.01}, {0, 0.01}},
		GridLat:            [][]float64{{0, 0}, {0.01, 0.01}},
		DistThreshMeters:   10000,
		PrecipField:        precip,
		KMeansRestarts:     4,
	}

	const nModel = 10
	modelDays := make([]types.Day, nModel)
	modelPC := make([][]float64, nModel)
	for t := 0; t < nModel; t++ {
		modelDays[t] = types.Day{Year: 2010, Month: 1, Day: t + 1, Index: nLearn + t}
		f := float64(t)
		if t%2 == 0 {
			modelPC[t] = []float64{5 + 0.01*math.Sin(f), 0.01 * math.Cos(f)}
		} else {
			modelPC[t] = []float64{-5 + 0.01*math.Sin(f), -0.01 * math.Cos(f)}
		}
	}

	return SeasonPlan{
		Season:   season,
		Learning: learningInputs,
		Model: ModelSeasonData{
			Days: modelDays,
			PC:   modelPC,
		},
	}
}

func buildRunInputs() RunInputs {
	plan := buildPlan()
	return RunInputs{
		Seasons:        []SeasonPlan{plan},
		NEofRea:        2,
		NEofObs:        2,
		AnchorPoints:   []regression.AnchorPoint{{Lon: 0, Lat: 0}},
		AllDays:        plan.Model.Days,
		KMeansRestarts: 4,
		KMeansSeed:     11,
	}
}

func TestRunProducesOneRecordPerModelDay(t *testing.T) {
	in := buildRunInputs()
	out := make(chan emit.DownscaledDay, len(in.AllDays))
	emitter := emit.NewChannelEmitter(out)

	err := Run(context.Background(), in, nil, emitter, types.RunMetadata{RunID: "test-run"}, Anchor{}, nil)
	require.NoError(t, err)
	close(out)

	var days []emit.DownscaledDay
	for d := range out {
		days = append(days, d)
	}
	require.Len(t, days, len(in.AllDays))

	for i, d := range days {
		require.False(t, d.Sentinel, "day %d should not be a sentinel slot", i)
		require.NotEmpty(t, d.AnalogDate)
	}
}

func TestRunPopulatesLearningCacheOnMiss(t *testing.T) {
	in := buildRunInputs()
	in.CacheKey = "test-cache-key"
	store := learningstore.NewFileStore(t.TempDir(), nil)

	out := make(chan emit.DownscaledDay, len(in.AllDays))
	emitter := emit.NewChannelEmitter(out)

	err := Run(context.Background(), in, store, emitter, types.RunMetadata{RunID: "test-run"}, Anchor{}, nil)
	require.NoError(t, err)
	close(out)

	cached, err := store.Load(context.Background(), in.CacheKey, in.NEofRea, len(in.AnchorPoints), []string{"test"})
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Contains(t, cached.Seasons, "test")

	// A second run against the now-populated cache must reuse it rather
	// than re-assembling, and produce the same number of records.
	out2 := make(chan emit.DownscaledDay, len(in.AllDays))
	emitter2 := emit.NewChannelEmitter(out2)
	err = Run(context.Background(), in, store, emitter2, types.RunMetadata{RunID: "test-run-2"}, Anchor{}, nil)
	require.NoError(t, err)
	close(out2)

	var days2 []emit.DownscaledDay
	for d := range out2 {
		days2 = append(days2, d)
	}
	require.Len(t, days2, len(in.AllDays))
}

type recordingNarrator struct {
	summary RunSummary
	called  bool
}

func (n *recordingNarrator) Narrate(ctx context.Context, summary RunSummary) (string, error) {
	n.called = true
	n.summary = summary
	return "run looked nominal", nil
}

func TestRunCallsNarratorWithSeasonCandidateCounts(t *testing.T) {
	in := buildRunInputs()
	narrator := &recordingNarrator{}
	in.Narrator = narrator

	out := make(chan emit.DownscaledDay, len(in.AllDays))
	emitter := emit.NewChannelEmitter(out)

	err := Run(context.Background(), in, nil, emitter, types.RunMetadata{RunID: "test-run"}, Anchor{}, nil)
	require.NoError(t, err)
	close(out)
	for range out {
	}

	require.True(t, narrator.called)
	require.Equal(t, 1, narrator.summary.SeasonCount)
	require.Equal(t, len(in.AllDays), narrator.summary.CandidatePoolSizes["test"])
}

func TestRunRejectsEmptySeasons(t *testing.T) {
	in := RunInputs{AllDays: nil}
	out := make(chan emit.DownscaledDay, 1)
	emitter := emit.NewChannelEmitter(out)
	err := Run(context.Background(), in, nil, emitter, types.RunMetadata{}, Anchor{}, nil)
	require.Error(t, err)
}
