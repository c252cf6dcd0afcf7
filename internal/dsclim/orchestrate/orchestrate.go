// Package orchestrate ties components A-J into the end-to-end pipeline
// run described by the requirements: assemble (or load) the learning
// record, classify and downscale every season's days, correct them and
// emit them on the global time axis (spec §4, §5 concurrency, §8
// round-trip property). It owns no file I/O and reads no wall clock;
// every input is handed to it already decoded and every timestamp
// comes from the caller's types.RunMetadata.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cerfacs-go/dsclim/internal/dsclim/analog"
	"github.com/cerfacs-go/dsclim/internal/dsclim/clusters"
	"github.com/cerfacs-go/dsclim/internal/dsclim/delta"
	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/emit"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning/learningstore"
	"github.com/cerfacs-go/dsclim/internal/dsclim/merge"
	"github.com/cerfacs-go/dsclim/internal/dsclim/normalize"
	"github.com/cerfacs-go/dsclim/internal/dsclim/reducer"
	"github.com/cerfacs-go/dsclim/internal/dsclim/regression"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// ModelSeasonData is the downscaling-period data for one season, on the
// same EOF/anchor basis as the matching SeasonPlan.Learning.
type ModelSeasonData struct {
	Days []types.Day

	PC []([]float64) // raw reanalysis/model PC, [t][k], same basis as Learning.ReanalysisPC

	SecondaryRaw []float64 // raw, unnormalized, aligned with Days

	// ReferenceWindow marks the model's own control-run reference
	// period (true where t belongs to it), used to compute the model
	// secondary-field mean/variance the delta engine needs; it is
	// distinct from the learning period's reference window, since the
	// two periods are normalized against their own baselines before
	// the physical-units delta converts between them.
	ReferenceWindow []bool

	Field   []types.Field2D // only used when Season.SecondaryCov
	CovMask [][]bool
}

// SeasonPlan bundles one season's learning inputs and downscaling-period
// data.
type SeasonPlan struct {
	Season   types.Season
	Learning learning.SeasonInputs // Season field must match Season above
	Model    ModelSeasonData
}

// RunInputs is everything one orchestrator run needs beyond the cache
// backend and emitter.
type RunInputs struct {
	Seasons []SeasonPlan

	NEofRea, NEofObs int
	AnchorPoints     []regression.AnchorPoint

	AllDays []types.Day // the full downscaling-period time axis, for the merge step

	UseDownscaledYear bool
	OnlyWT            bool

	CacheKey       string
	KMeansRestarts int
	KMeansSeed     uint64

	// Narrator is optional: when set, Run asks it for a plain-language
	// run summary after every season has been processed. A nil Narrator
	// skips this step entirely.
	Narrator Narrator

	// AnalogCache is optional: when set, the Analog Finder uses it (keyed
	// by CacheKey) to skip recomputing a model day's full standardized
	// candidate list across reruns that only change Season.NDaysChoices.
	// A nil AnalogCache disables this entirely and costs nothing.
	AnalogCache analog.Cache
}

// RunSummary is the structured input to a Narrator, built from the
// finished run without re-reading any per-day record.
type RunSummary struct {
	RunID              string
	SeasonCount        int
	CandidatePoolSizes map[string]int // season name -> number of downscaled days processed
}

// Narrator turns a finished run into a short plain-language summary
// (ambient, optional reporting nicety; never on the critical path, see
// Run).
type Narrator interface {
	Narrate(ctx context.Context, summary RunSummary) (string, error)
}

// Anchor is the reference location for the emitted daylength
// diagnostic; the zero value disables it (see emit.AnchorLocation).
type Anchor = emit.AnchorLocation

// Run executes the full pipeline and emits one DownscaledDay per day of
// in.AllDays, in time order, via out.
func Run(ctx context.Context, in RunInputs, store learningstore.Store, out emit.Emitter, run types.RunMetadata, anchor Anchor, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if len(in.Seasons) == 0 {
		return dsclimerr.Configuration("orchestrate: at least one season is required")
	}

	seasonNames := make([]string, len(in.Seasons))
	for i, sp := range in.Seasons {
		seasonNames[i] = sp.Season.Name
	}

	rec, err := loadOrAssembleLearning(ctx, in, seasonNames, store, logger)
	if err != nil {
		return err
	}

	seasonOutputs := make([]merge.SeasonOutput, len(in.Seasons))
	for i, sp := range in.Seasons {
		sl, ok := rec.Seasons[sp.Season.Name]
		if !ok {
			return dsclimerr.Configuration("orchestrate: learning record missing season %q", sp.Season.Name)
		}

		so, err := runSeason(ctx, in, sp, sl, rec, logger)
		if err != nil {
			return fmt.Errorf("orchestrate: season %q: %w", sp.Season.Name, err)
		}
		seasonOutputs[i] = so
	}

	merged, err := merge.Merge(in.AllDays, seasonOutputs)
	if err != nil {
		return err
	}

	if in.Narrator != nil {
		narrateRun(ctx, in, seasonOutputs, run, logger)
	}

	for _, gr := range merged {
		day := emit.BuildDownscaledDay(run, gr, anchor)
		if err := out.Emit(ctx, day); err != nil {
			return fmt.Errorf("orchestrate: emitting day %s: %w", day.Date, err)
		}
	}
	logger.Info("orchestrator run finished", "run_id", run.RunID, "days", len(merged), "seasons", len(in.Seasons))
	return nil
}

// narrateRun asks in.Narrator for a plain-language run summary and logs
// it at Info; a failure here is a Warning, never a run failure (spec
// §7's "no silent recovery" binds the algorithmic failure classes, not
// this reporting nicety).
func narrateRun(ctx context.Context, in RunInputs, seasonOutputs []merge.SeasonOutput, run types.RunMetadata, logger *slog.Logger) {
	summary := RunSummary{
		RunID:              run.RunID,
		SeasonCount:        len(seasonOutputs),
		CandidatePoolSizes: make(map[string]int, len(seasonOutputs)),
	}
	for _, so := range seasonOutputs {
		summary.CandidatePoolSizes[so.Season] = len(so.Records)
	}

	text, err := in.Narrator.Narrate(ctx, summary)
	if err != nil {
		logger.Warn("run narrative unavailable", "run_id", run.RunID, "error", err)
		return
	}
	logger.Info("run narrative", "run_id", run.RunID, "narrative", text)
}

// loadOrAssembleLearning implements the cache contract (spec §4.F
// expansion): a cache hit skips k-means and regression entirely; a
// miss assembles every season and writes the result back.
func loadOrAssembleLearning(ctx context.Context, in RunInputs, seasonNames []string, store learningstore.Store, logger *slog.Logger) (*types.LearningRecord, error) {
	nPts := len(in.AnchorPoints)

	if store != nil && in.CacheKey != "" {
		cached, err := store.Load(ctx, in.CacheKey, in.NEofRea, nPts, seasonNames)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			logger.Info("learning cache hit", "key", in.CacheKey)
			return cached, nil
		}
	}

	rec := &types.LearningRecord{
		NEof:    in.NEofRea,
		NPts:    nPts,
		Seasons: make(map[string]*types.SeasonLearning, len(in.Seasons)),
	}

	for i, sp := range in.Seasons {
		inputs := sp.Learning
		inputs.Season = sp.Season
		inputs.AnchorPoints = in.AnchorPoints
		inputs.KMeansRestarts = in.KMeansRestarts
		inputs.KMeansSeed = in.KMeansSeed ^ uint64(i)

		sl, pcVar, v1, err := learning.Assemble(inputs, logger)
		if err != nil {
			return nil, err
		}
		rec.Seasons[sp.Season.Name] = sl
		// v1 and the per-EOF normalized variance are reference-period
		// constants: every season computed over the same reference
		// window agrees on them up to floating-point noise, so the
		// first season assembled sets the record-level value.
		if i == 0 {
			rec.PcNormalizedVar = pcVar
			rec.ReferenceSingularVariance = v1
		}
	}

	if err := learning.MergedDayCoverage(rec); err != nil {
		return nil, err
	}

	if store != nil && in.CacheKey != "" {
		if err := store.Save(ctx, in.CacheKey, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// runSeason classifies the season's downscaling-period days against the
// learned weights, predicts their precipitation index at every anchor,
// runs the Analog Finder and the Delta Engine, and returns the
// season's merge-ready output.
func runSeason(ctx context.Context, in RunInputs, sp SeasonPlan, sl *types.SeasonLearning, rec *types.LearningRecord, logger *slog.Logger) (merge.SeasonOutput, error) {
	modelClass, modelPrecip, regressionSecondary, err := classifyAndPredict(sp, sl, rec)
	if err != nil {
		return merge.SeasonOutput{}, err
	}

	data := analog.SeasonData{
		Season:            sp.Season,
		ModelDays:         sp.Model.Days,
		LearnDays:         sl.Time,
		ModelPrecip:       modelPrecip,
		LearnPrecip:       sl.PrecipIndexLearn,
		ModelSecondary:    regressionSecondary,
		LearnSecondary:    sl.SupIndexLearn,
		ModelField:        sp.Model.Field,
		LearnField:        sl.SecondaryField,
		CovMask:           sp.Model.CovMask,
		ModelClass:        modelClass,
		LearnClass:        sl.ClassClusters,
		UseDownscaledYear: in.UseDownscaledYear,
		OnlyWT:            in.OnlyWT,
		MasterSeed:        in.KMeansSeed,
		Cache:             in.AnalogCache,
		CacheKeyPrefix:    in.CacheKey,
	}

	result, err := analog.Find(ctx, data)
	if err != nil {
		return merge.SeasonOutput{}, err
	}

	corrected := result.Records
	if sp.Season.UsesSecondary() {
		// The delta engine needs each side's raw anomaly rescaled by
		// its own native variability, not the shared normalization
		// used for ranking candidates above: re-normalize the model
		// series against the model's own control-period statistics so
		// x_mdl*sqrt(V_mdl) recovers its physical-units anomaly.
		modelForDelta, vMdl, err := modelSecondaryForDelta(sp)
		if err != nil {
			return merge.SeasonOutput{}, err
		}
		corrected, err = delta.Compute(result.Records, modelForDelta, sl.SupIndexLearn, vMdl, sl.SupIndexVar)
		if err != nil {
			return merge.SeasonOutput{}, err
		}
	}

	return merge.SeasonOutput{
		Season:  sp.Season.Name,
		Days:    sp.Model.Days,
		Records: corrected,
	}, nil
}

// classifyAndPredict applies the learned normalization and regression
// to the season's downscaling-period days (spec §4.G step 0: the model
// day's own weather-regime class and predicted precipitation index are
// needed before the analog search can compare it to learning days). The
// secondary index it returns is normalized against the learning
// period's own reference statistics, matching the basis the regression
// was fit against and giving the analog metric a common scale with the
// learning series.
func classifyAndPredict(sp SeasonPlan, sl *types.SeasonLearning, rec *types.LearningRecord) (types.DayClassification, types.PrecipIndex, []float64, error) {
	normalizedPC, err := normalize.NormalizePC(sp.Model.PC, rec.ReferenceSingularVariance)
	if err != nil {
		return nil, types.PrecipIndex{}, nil, err
	}
	rawDist, err := clusters.RawDistanceSeries(normalizedPC, sl.Weight, rec.PcNormalizedVar)
	if err != nil {
		return nil, types.PrecipIndex{}, nil, err
	}
	standardized, err := clusters.Normalize(rawDist, sl.ClusterRefMean, sl.ClusterRefVar)
	if err != nil {
		return nil, types.PrecipIndex{}, nil, err
	}
	classification := clusters.Classify(standardized)

	var regressionSecondary []float64
	if sp.Season.UsesSecondary() {
		regressionSecondary = normalizeAgainst(sp.Model.SecondaryRaw, sl.SupIndexMean, sl.SupIndexVar)
	}

	n := len(sp.Model.Days)
	nPts := len(sl.PrecipRegCoef)
	p := make([][]float64, n)
	for t := 0; t < n; t++ {
		p[t] = make([]float64, nPts)
	}
	for pt := 0; pt < nPts; pt++ {
		fit := &regression.Fitted{Coef: sl.PrecipRegCoef[pt]}
		for t := 0; t < n; t++ {
			var sec *float64
			if sp.Season.NReg == sp.Season.NClusters+1 {
				v := regressionSecondary[t]
				sec = &v
			}
			pred, err := fit.Predict(standardized[t], sec)
			if err != nil {
				return nil, types.PrecipIndex{}, nil, err
			}
			p[t][pt] = pred
		}
	}

	return classification, types.PrecipIndex{NPts: nPts, P: p}, regressionSecondary, nil
}

// modelSecondaryForDelta normalizes the model's secondary series
// against its own control-period reference window, returning the
// normalized series and the reference variance the delta engine needs
// to rescale it back to physical units.
func modelSecondaryForDelta(sp SeasonPlan) ([]float64, float64, error) {
	mean, variance, err := reducer.TemporalMeanVariance(sp.Model.SecondaryRaw, sp.Model.ReferenceWindow)
	if err != nil {
		return nil, 0, err
	}
	return normalizeAgainst(sp.Model.SecondaryRaw, mean, variance), variance, nil
}

func normalizeAgainst(raw []float64, mean, variance float64) []float64 {
	sd := reducer.StdDev(variance)
	out := make([]float64, len(raw))
	for t, v := range raw {
		if sd == 0 {
			continue
		}
		out[t] = (v - mean) / sd
	}
	return out
}
