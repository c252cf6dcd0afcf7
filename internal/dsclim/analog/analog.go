// Package analog implements component G, the Analog Finder: for every
// downscaled day, search the learning catalogue for the day(s) whose
// weather-regime signature and precipitation index best match, by a
// composite standardized metric (spec §4.G).
package analog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/reducer"
	"github.com/cerfacs-go/dsclim/internal/dsclim/timeaxis"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// Cache holds the working set of per-day standardized-metric
// intermediates (the full candidate ranking before the NDaysChoices
// cut) so that a rerun of the finder alone, with a different
// NDaysChoices, does not repeat the distance/covariance computation.
// Its shape matches pkg/redis.Client's Get/Set exactly, so that client
// satisfies this interface without an adapter.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// defaultCacheTTL bounds how long a cached candidate ranking outlives
// the run that computed it; long enough to cover a same-session rerun
// with a different NDaysChoices, short enough that a stale entry from
// an old learning record does not linger indefinitely.
const defaultCacheTTL = time.Hour

// SeasonData bundles every input the finder needs for one season (spec
// §4.G inputs list). Model and learning slices are already restricted
// to the season and aligned with ModelDays/LearnDays.
type SeasonData struct {
	Season types.Season

	ModelDays []types.Day
	LearnDays []types.Day

	ModelPrecip types.PrecipIndex // [t_mdl][p]
	LearnPrecip types.PrecipIndex // [t_lrn][p]

	ModelSecondary []float64 // x_mdl[t_mdl], normalized
	LearnSecondary []float64 // x_lrn[t_lrn], normalized

	ModelField []types.Field2D // only used if SecondaryCov, [t_mdl]
	LearnField []types.Field2D // only used if SecondaryCov, [t_lrn]
	CovMask    [][]bool        // shared binary mask for the covariance metric

	ModelClass types.DayClassification // c_mdl[t_mdl]
	LearnClass types.DayClassification // c_lrn[t_lrn]

	UseDownscaledYear bool
	OnlyWT            bool

	MasterSeed uint64 // for reproducible shuffling (§5)

	// Cache and CacheKeyPrefix are optional; a nil Cache or empty
	// CacheKeyPrefix disables caching entirely. See Cache.
	Cache          Cache
	CacheKeyPrefix string
}

// Result is the per-season output of the finder: one AnalogRecord per
// model day, write-once, indexed like SeasonData.ModelDays.
type Result struct {
	Records []types.AnalogRecord
}

// Find runs the Analog Finder over every day of one season, fanning
// out across a bounded worker pool (spec §5: data-parallel within a
// season, each day writes its own output slot). Each day gets its own
// PRNG seeded from the master seed and the day's position, so reruns
// with the same seed reproduce the same shuffles regardless of
// scheduling.
func Find(ctx context.Context, data SeasonData) (*Result, error) {
	n := len(data.ModelDays)
	records := make([]types.AnalogRecord, n)
	errs := make([]error, n)

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				select {
				case <-ctx.Done():
					errs[t] = ctx.Err()
					continue
				default:
				}
				// Per-day sub-seed, not per-worker: the shuffle outcome
				// for day t is independent of how days were scheduled
				// across workers.
				rng := rand.New(rand.NewPCG(data.MasterSeed, uint64(t)))
				rec, err := findOneDay(ctx, data, t, rng)
				if err != nil {
					errs[t] = err
					continue
				}
				records[t] = *rec
			}
		}()
	}

	for t := 0; t < n; t++ {
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return &Result{Records: records}, nil
}

// ranked pairs a learning-day candidate with its position in the
// original candidate list and its standardized composite metric.
type ranked struct {
	learnIdx     int
	primaryMetric float64 // unnormalized m_p, carried into the candidate cache
	secondMetric  float64 // unnormalized m_s, needed by secondary_main selection; 0 if unused
	standardized  float64 // m̂
}

// cachedRanked is the wire shape of a ranked candidate list, since
// ranked's fields are unexported (in-package use only).
type cachedRanked struct {
	LearnIdx      int     `json:"learn_idx"`
	PrimaryMetric float64 `json:"primary_metric"`
	SecondMetric  float64 `json:"second_metric"`
	Standardized  float64 `json:"standardized"`
}

// rankedCandidates implements spec §4.G steps 1-5 for one downscaled
// day: candidate windowing, primary/secondary metric computation,
// only_wt de-prioritization and standardization, returning the full
// ranking sorted ascending by standardized metric (steps 6-7, the
// NDaysChoices cut and final selection, happen in the caller). The
// result depends only on the learning record and the model day, not on
// NDaysChoices, so it is what gets cached.
func rankedCandidates(ctx context.Context, data SeasonData, t int, cacheKey string) ([]ranked, error) {
	if cacheKey != "" {
		if all, ok := loadRankedCache(ctx, data.Cache, cacheKey); ok {
			return all, nil
		}
	}

	modelDay := data.ModelDays[t]
	doyT := timeaxis.DayOfYear(modelDay)

	var candidates []int
	for tl, learnDay := range data.LearnDays {
		if timeaxis.DayOfYearDistance(doyT, timeaxis.DayOfYear(learnDay)) > data.Season.NDaysWindow {
			continue
		}
		if !data.UseDownscaledYear && learnDay.SameCalendarYear(modelDay) {
			continue
		}
		candidates = append(candidates, tl)
	}
	if len(candidates) == 0 {
		return nil, dsclimerr.NoCandidates("analog finder: day %d-%02d-%02d has no learning candidates within window", modelDay.Year, modelDay.Month, modelDay.Day)
	}

	mp := make([]float64, len(candidates))
	for i, tl := range candidates {
		mp[i] = euclideanDistance(data.ModelPrecip.P[t], data.LearnPrecip.P[tl])
	}

	useSecondary := data.Season.SecondaryChoice || data.Season.SecondaryMainChoice
	var ms []float64
	if useSecondary {
		ms = make([]float64, len(candidates))
		for i, tl := range candidates {
			if data.Season.SecondaryCov {
				cov, err := reducer.MaskedCovariance(data.ModelField[t].Values, data.LearnField[tl].Values, data.CovMask)
				if err != nil {
					return nil, err
				}
				ms[i] = math.Abs(cov)
			} else {
				ms[i] = math.Abs(data.ModelSecondary[t] - data.LearnSecondary[tl])
			}
		}
	}

	if data.OnlyWT {
		maxMp := maxOf(mp)
		var maxMs float64
		if ms != nil {
			maxMs = maxOf(ms)
		}
		for i, tl := range candidates {
			if data.LearnClass[tl] != data.ModelClass[t] {
				mp[i] = maxMp
				if ms != nil {
					ms[i] = maxMs
				}
			}
		}
	}

	mHat := standardize(mp)
	if data.Season.SecondaryChoice {
		msHat := standardize(ms)
		for i := range mHat {
			mHat[i] += msHat[i]
		}
	}

	all := make([]ranked, len(candidates))
	for i, tl := range candidates {
		r := ranked{learnIdx: tl, primaryMetric: mp[i], standardized: mHat[i]}
		if ms != nil {
			r.secondMetric = ms[i]
		}
		all[i] = r
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].standardized != all[j].standardized {
			return all[i].standardized < all[j].standardized
		}
		return all[i].learnIdx < all[j].learnIdx
	})

	if cacheKey != "" {
		saveRankedCache(ctx, data.Cache, cacheKey, all)
	}
	return all, nil
}

// loadRankedCache and saveRankedCache treat the cache as a pure
// performance optimization: any failure (miss, corrupt entry,
// unreachable backend) falls back to recomputing rather than failing
// the run, since nothing about the result depends on the cache being
// available.
func loadRankedCache(ctx context.Context, cache Cache, key string) ([]ranked, bool) {
	raw, err := cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var entries []cachedRanked
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, false
	}
	all := make([]ranked, len(entries))
	for i, e := range entries {
		all[i] = ranked{learnIdx: e.LearnIdx, primaryMetric: e.PrimaryMetric, secondMetric: e.SecondMetric, standardized: e.Standardized}
	}
	return all, true
}

func saveRankedCache(ctx context.Context, cache Cache, key string, all []ranked) {
	entries := make([]cachedRanked, len(all))
	for i, r := range all {
		entries[i] = cachedRanked{LearnIdx: r.learnIdx, PrimaryMetric: r.primaryMetric, SecondMetric: r.secondMetric, Standardized: r.standardized}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return
	}
	_ = cache.Set(ctx, key, string(data), defaultCacheTTL)
}

// findOneDay implements steps 1-7 of spec §4.G for one downscaled day.
func findOneDay(ctx context.Context, data SeasonData, t int, rng *rand.Rand) (*types.AnalogRecord, error) {
	modelDay := data.ModelDays[t]

	if data.Season.SecondaryCov {
		if len(data.ModelField) != len(data.ModelDays) {
			return nil, dsclimerr.DimensionMismatch("analog finder: season %q has secondary_cov set but model field length %d != model day count %d", data.Season.Name, len(data.ModelField), len(data.ModelDays))
		}
		if len(data.LearnField) != len(data.LearnDays) {
			return nil, dsclimerr.DimensionMismatch("analog finder: season %q has secondary_cov set but learning field length %d != learning day count %d", data.Season.Name, len(data.LearnField), len(data.LearnDays))
		}
	}

	cacheKey := ""
	if data.Cache != nil && data.CacheKeyPrefix != "" {
		cacheKey = fmt.Sprintf("%s:analog:%s:%d", data.CacheKeyPrefix, data.Season.Name, modelDay.Index)
	}

	all, err := rankedCandidates(ctx, data, t, cacheKey)
	if err != nil {
		return nil, err
	}

	k := data.Season.NDaysChoices
	if k > len(all) {
		k = len(all)
	}
	top := all[:k]

	cands := make([]types.AnalogCandidate, k)
	for i, r := range top {
		cands[i] = types.AnalogCandidate{
			LearnIndex:       r.learnIdx,
			LearnDay:         data.LearnDays[r.learnIdx],
			NormalizedMetric: r.standardized,
		}
	}

	chosenPos := secondSelection(data.Season, top, rng)

	return &types.AnalogRecord{
		DownscaledDay:   modelDay,
		ChosenAnalog:    cands[chosenPos],
		Candidates:      cands,
		ClassDownscaled: data.ModelClass[t],
	}, nil
}

// secondSelection implements spec §4.G step 6, returning the index
// into `top` of the chosen candidate.
func secondSelection(season types.Season, top []ranked, rng *rand.Rand) int {
	if season.Shuffle {
		type draw struct {
			pos int
			key int
		}
		draws := make([]draw, len(top))
		for i := range top {
			draws[i] = draw{pos: i, key: rng.IntN(100)}
		}
		sort.SliceStable(draws, func(i, j int) bool { return draws[i].key < draws[j].key })
		return draws[0].pos
	}

	if season.SecondaryMainChoice {
		best := 0
		for i := 1; i < len(top); i++ {
			switch {
			case top[i].secondMetric < top[best].secondMetric:
				best = i
			case top[i].secondMetric == top[best].secondMetric && top[i].standardized < top[best].standardized:
				best = i
			case top[i].secondMetric == top[best].secondMetric && top[i].standardized == top[best].standardized && top[i].learnIdx < top[best].learnIdx:
				best = i
			}
		}
		return best
	}

	best := 0
	for i := 1; i < len(top); i++ {
		if top[i].standardized < top[best].standardized {
			best = i
		}
	}
	return best
}

func euclideanDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func standardize(v []float64) []float64 {
	n := float64(len(v))
	var mean float64
	for _, x := range v {
		mean += x
	}
	mean /= n
	var variance float64
	for _, x := range v {
		variance += (x - mean) * (x - mean)
	}
	variance /= n
	sd := math.Sqrt(variance)
	out := make([]float64, len(v))
	for i, x := range v {
		if sd == 0 {
			continue
		}
		out[i] = (x - mean) / sd
	}
	return out
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}
