package analog

import (
	"context"
	"testing"
	"time"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/stretchr/testify/require"
)

func baseSeasonData() SeasonData {
	season := types.Season{
		Name:         "test",
		Months:       map[int]bool{1: true},
		NClusters:    2,
		NReg:         2,
		NDaysWindow:  5,
		NDaysChoices: 3,
	}

	learnDays := make([]types.Day, 10)
	learnPrecip := make([][]float64, 10)
	learnClass := make(types.DayClassification, 10)
	for i := 0; i < 10; i++ {
		learnDays[i] = types.Day{Year: 1990 + i, Month: 1, Day: 10, Index: 1000 + i}
		learnPrecip[i] = []float64{float64(i) * 10}
		learnClass[i] = i % 2
	}
	// One exact match at index 4.
	learnPrecip[4] = []float64{2.0}

	modelDays := []types.Day{{Year: 2050, Month: 1, Day: 10, Index: 5000}}
	modelPrecip := [][]float64{{2.0}}
	modelClass := types.DayClassification{0}

	return SeasonData{
		Season:            season,
		ModelDays:         modelDays,
		LearnDays:         learnDays,
		ModelPrecip:       types.PrecipIndex{NPts: 1, P: modelPrecip},
		LearnPrecip:       types.PrecipIndex{NPts: 1, P: learnPrecip},
		ModelClass:        modelClass,
		LearnClass:        learnClass,
		UseDownscaledYear: true,
		MasterSeed:        99,
	}
}

func TestFindPicksExactPrecipMatch(t *testing.T) {
	data := baseSeasonData()
	res, err := Find(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	require.Equal(t, 4, rec.ChosenAnalog.LearnIndex)
	require.Len(t, rec.Candidates, 3)
	for i := 1; i < len(rec.Candidates); i++ {
		require.LessOrEqual(t, rec.Candidates[i-1].NormalizedMetric, rec.Candidates[i].NormalizedMetric)
	}
}

func TestFindRejectsSameCalendarYearWhenNotUsingDownscaledYear(t *testing.T) {
	data := baseSeasonData()
	data.UseDownscaledYear = false
	data.ModelDays[0].Year = 1994 // matches LearnDays[4]'s year
	data.LearnDays = []types.Day{data.LearnDays[4]} // only candidate is same-year
	data.LearnPrecip = types.PrecipIndex{NPts: 1, P: [][]float64{{2.0}}}
	data.LearnClass = types.DayClassification{0}

	_, err := Find(context.Background(), data)
	require.Error(t, err)
	class, ok := dsclimerr.As(err)
	require.True(t, ok)
	require.Equal(t, dsclimerr.ClassNoCandidates, class)
}

func TestFindShuffleIsReproducibleWithSameSeed(t *testing.T) {
	data := baseSeasonData()
	data.Season.Shuffle = true

	r1, err := Find(context.Background(), data)
	require.NoError(t, err)
	r2, err := Find(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, r1.Records[0].ChosenAnalog, r2.Records[0].ChosenAnalog)
}

func TestFindOnlyWTDeprioritizesMismatchedRegime(t *testing.T) {
	data := baseSeasonData()
	data.OnlyWT = true
	// Put the exact-precip-match candidate (index 4) in the opposite
	// regime from the model day; a same-regime, slightly worse-precip
	// candidate should win instead.
	data.LearnClass[4] = 1 // model class is 0
	data.LearnClass[5] = 0
	data.LearnPrecip.P[5] = []float64{2.1}

	res, err := Find(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, 5, res.Records[0].ChosenAnalog.LearnIndex)
}

func TestFindSecondaryCovWithoutFieldsFailsGracefully(t *testing.T) {
	data := baseSeasonData()
	data.Season.SecondaryCov = true
	data.Season.SecondaryMainChoice = true
	// ModelField/LearnField left nil: a season file declaring
	// secondary_cov without supplying the matching grids must not panic.

	_, err := Find(context.Background(), data)
	require.Error(t, err)
	class, ok := dsclimerr.As(err)
	require.True(t, ok)
	require.Equal(t, dsclimerr.ClassDimensionMismatch, class)
}

func TestFindSecondaryCovUsesFieldCovariance(t *testing.T) {
	data := baseSeasonData()
	data.Season.SecondaryCov = true
	data.Season.SecondaryMainChoice = true

	mask := [][]bool{{true, true}, {true, true}}
	flat := func(v float64) [][]float64 { return [][]float64{{v, v}, {v, v}} }

	data.CovMask = mask
	data.ModelField = []types.Field2D{{NY: 2, NX: 2, Values: flat(1.0)}}
	data.LearnField = make([]types.Field2D, len(data.LearnDays))
	for i := range data.LearnField {
		data.LearnField[i] = types.Field2D{NY: 2, NX: 2, Values: flat(float64(i))}
	}
	// Every field is spatially flat, so the masked covariance is 0 for
	// every candidate and the secondary metric ties; the tie-break on
	// the standardized precip metric then picks candidate 4.
	data.LearnField[4] = types.Field2D{NY: 2, NX: 2, Values: flat(1.0)}

	res, err := Find(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, 4, res.Records[0].ChosenAnalog.LearnIndex)
}

// fakeCache is a minimal in-memory Cache for exercising the
// candidate-ranking cache without a real Redis backend.
type fakeCache struct {
	entries map[string]string
	gets    int
	sets    int
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.gets++
	v, ok := c.entries[key]
	if !ok {
		return "", context.Canceled
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.sets++
	c.entries[key] = value.(string)
	return nil
}

func TestFindCachesRankedCandidatesAcrossCalls(t *testing.T) {
	cache := newFakeCache()
	data := baseSeasonData()
	data.Cache = cache
	data.CacheKeyPrefix = "run-1"

	res1, err := Find(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)

	res2, err := Find(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, 2, cache.gets) // one miss-then-set, one hit
	require.Equal(t, 1, cache.sets) // second call served from cache, no extra write
	require.Equal(t, res1.Records[0].ChosenAnalog, res2.Records[0].ChosenAnalog)
}
