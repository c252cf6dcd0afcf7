// Package learning implements component F: given EOFs, observations,
// reanalysis and a configured season partition, build the
// LearningRecord (weights, cluster assignments, regression, per-season
// secondary mean/variance) that feeds the rest of the pipeline.
package learning

import (
	"log/slog"

	"github.com/cerfacs-go/dsclim/internal/dsclim/clusters"
	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/kmeans"
	"github.com/cerfacs-go/dsclim/internal/dsclim/normalize"
	"github.com/cerfacs-go/dsclim/internal/dsclim/reducer"
	"github.com/cerfacs-go/dsclim/internal/dsclim/regression"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// SeasonInputs bundles everything the assembler needs for one season. All
// slices are already restricted to the learning period and aligned by
// index.
type SeasonInputs struct {
	Season types.Season

	Days []types.Day // learning-period days, restricted to this season

	ReanalysisPC [][]float64 // raw PC, [t][k], k in 0..NEofRea-1
	ReanalysisSingular []float64

	ObsPC [][]float64 // raw PC, [t][k], k in 0..NEofObs-1
	ObsSingular []float64

	ReferenceWindow []bool // true where t is in the control-run ∩ learning-period window, indexed like Days

	// Precipitation: per anchor point p, a daily field + missing mask
	// used to derive the observed precipitation index.
	AnchorPoints []regression.AnchorPoint
	GridLon, GridLat [][]float64
	DistThreshMeters float64
	PrecipField []([][]float64) // [t] -> [y][x]
	PrecipMissing []([][]bool)  // [t] -> [y][x], may be nil

	// Secondary field (e.g. temperature): masked spatial mean series,
	// already computed per day over the reanalysis.
	SecondaryRaw []float64 // unnormalized raw secondary series, reanalysis, aligned with Days

	// SecondaryField is the gridded form of the secondary field, aligned
	// with Days, required only when Season.SecondaryCov is set (the
	// analog metric then compares fields directly instead of the
	// spatially-averaged SecondaryRaw series).
	SecondaryField []types.Field2D

	KMeansRestarts int
	KMeansSeed     uint64
}

// Assemble runs the Learning Assembler pipeline for one season (spec
// §4.F steps 3-7; steps 1-2, restricting to the calendar intersection
// of reanalysis and observations, are the caller's responsibility since
// they depend on the raw file layouts this package does not read).
// Besides the season's SeasonLearning, it returns the per-EOF
// normalized variance and the scalar reference-period singular
// variance (v1) the orchestrator needs to classify downscaling-period
// days against the same normalization later.
func Assemble(in SeasonInputs, logger *slog.Logger) (*types.SeasonLearning, []float64, float64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := in.Season.Validate(); err != nil {
		return nil, nil, 0, err
	}
	n := len(in.Days)
	if len(in.ReanalysisPC) != n || len(in.ObsPC) != n {
		return nil, nil, 0, dsclimerr.DimensionMismatch("learning assembler: PC series length mismatch with day count %d", n)
	}
	if in.Season.SecondaryCov && len(in.SecondaryField) != n {
		return nil, nil, 0, dsclimerr.DimensionMismatch("learning assembler: season %q has secondary_cov set but secondary field length %d != day count %d", in.Season.Name, len(in.SecondaryField), n)
	}

	// Step 3: concatenated, singular-value-scaled feature space for
	// k-means, reanalysis half kept as cluster centroids.
	scaledRea, err := normalize.ScalePC(in.ReanalysisPC, in.ReanalysisSingular)
	if err != nil {
		return nil, nil, 0, err
	}
	scaledObs, err := normalize.ScalePC(in.ObsPC, in.ObsSingular)
	if err != nil {
		return nil, nil, 0, err
	}
	nEofRea := len(in.ReanalysisSingular)
	nEofObs := len(in.ObsSingular)

	features := make([][]float64, n)
	for t := 0; t < n; t++ {
		row := make([]float64, nEofRea+nEofObs)
		copy(row[:nEofRea], scaledRea[t])
		copy(row[nEofRea:], scaledObs[t])
		features[t] = row
	}

	kmRes, err := kmeans.Fit(features, kmeans.Config{
		K:        in.Season.NClusters,
		Restarts: in.KMeansRestarts,
		Seed:     in.KMeansSeed,
	}, logger)
	if err != nil {
		return nil, nil, 0, err
	}

	weights := types.Weights{NClusters: in.Season.NClusters, NEof: nEofRea, Centroids: make([][]float64, in.Season.NClusters)}
	for c := 0; c < in.Season.NClusters; c++ {
		weights.Centroids[c] = append([]float64(nil), kmRes.Centroids[c][:nEofRea]...)
	}

	// Step 4 is implied by kmRes.Assign, but the contract downstream
	// (cluster metric + classify) is recomputed from normalized
	// distances per step 5, not taken directly from k-means assignment,
	// so that classification is consistent between learning and
	// downscaling time.

	// Step 5: Normalizer over season-restricted reanalysis PCs.
	v1, err := normalize.ReferenceVariance(scaledRea, in.ReferenceWindow)
	if err != nil {
		return nil, nil, 0, err
	}
	pcVar, err := normalize.PcNormalizedVar(scaledRea, in.ReferenceWindow, v1)
	if err != nil {
		return nil, nil, 0, err
	}
	normalizedPC, err := normalize.NormalizePC(in.ReanalysisPC, v1)
	if err != nil {
		return nil, nil, 0, err
	}

	rawDist, err := clusters.RawDistanceSeries(normalizedPC, weights, pcVar)
	if err != nil {
		return nil, nil, 0, err
	}
	refMean, refVar, err := clusters.ReferenceStats(rawDist, in.Season.NClusters, in.ReferenceWindow)
	if err != nil {
		return nil, nil, 0, err
	}
	standardized, err := clusters.Normalize(rawDist, refMean, refVar)
	if err != nil {
		return nil, nil, 0, err
	}
	classification := clusters.Classify(standardized)

	// Step 6: per-anchor regression fit.
	nPts := len(in.AnchorPoints)
	precipObs := make([][]float64, n)
	for t := 0; t < n; t++ {
		precipObs[t] = make([]float64, nPts)
	}
	regCoef := make([][]float64, nPts)

	var supIndexNormalized []float64
	var supMean, supVar float64
	if in.Season.UsesSecondary() {
		supMean, supVar, err = reducer.TemporalMeanVariance(in.SecondaryRaw, in.ReferenceWindow)
		if err != nil {
			return nil, nil, 0, err
		}
		sd := reducer.StdDev(supVar)
		supIndexNormalized = make([]float64, n)
		for t, v := range in.SecondaryRaw {
			if sd == 0 {
				continue
			}
			supIndexNormalized[t] = (v - supMean) / sd
		}
	}

	for p, pt := range in.AnchorPoints {
		neighborhood, count, err := regression.NeighborhoodMask(pt, in.GridLon, in.GridLat, in.DistThreshMeters)
		if err != nil {
			return nil, nil, 0, err
		}
		if count == 0 {
			return nil, nil, 0, dsclimerr.NoObservationsInNeighborhood("learning assembler: anchor point %d has no grid cells within %.0fm", p, in.DistThreshMeters)
		}

		yMissing := make([]bool, n)
		for t := 0; t < n; t++ {
			var missing [][]bool
			if in.PrecipMissing != nil {
				missing = in.PrecipMissing[t]
			}
			v, obsCount, err := regression.PrecipIndexFromField(in.PrecipField[t], missing, neighborhood)
			if err != nil {
				yMissing[t] = true
				continue
			}
			if obsCount == 0 {
				yMissing[t] = true
				continue
			}
			precipObs[t][p] = v
		}

		var secondaryForFit []float64
		if in.Season.NReg == in.Season.NClusters+1 {
			secondaryForFit = supIndexNormalized
		}
		yCol := make([]float64, n)
		for t := 0; t < n; t++ {
			yCol[t] = precipObs[t][p]
		}
		fit, err := regression.Fit(yCol, yMissing, standardized, secondaryForFit, in.Season.NReg)
		if err != nil {
			return nil, nil, 0, err
		}
		regCoef[p] = fit.Coef
	}

	sl := &types.SeasonLearning{
		Time:             in.Days,
		Weight:           weights,
		ClassClusters:    classification,
		PrecipRegCoef:    regCoef,
		PrecipIndexLearn: types.PrecipIndex{NPts: nPts, P: precipObs},
		SupIndexLearn:    supIndexNormalized,
		SupIndexMean:     supMean,
		SupIndexVar:      supVar,
		ClusterRefMean:   refMean,
		ClusterRefVar:    refVar,
		SecondaryField:   in.SecondaryField,
	}

	logger.Info("learning assembler finished season",
		"season", in.Season.Name, "days", n, "clusters", in.Season.NClusters, "anchor_points", nPts)

	return sl, pcVar, v1, nil
}

// VerifyCache checks that a loaded cache's shape agrees with the
// current configuration (spec §4.F cache contract): EOF count, point
// count and season count must match, else the cache is rejected.
func VerifyCache(cached *types.LearningRecord, expectedEof, expectedPts int, expectedSeasons []string) error {
	if cached.NEof != expectedEof {
		return dsclimerr.Configuration("learning cache: NEof %d != expected %d", cached.NEof, expectedEof)
	}
	if cached.NPts != expectedPts {
		return dsclimerr.Configuration("learning cache: NPts %d != expected %d", cached.NPts, expectedPts)
	}
	if len(cached.Seasons) != len(expectedSeasons) {
		return dsclimerr.Configuration("learning cache: %d seasons cached, %d expected", len(cached.Seasons), len(expectedSeasons))
	}
	for _, name := range expectedSeasons {
		if _, ok := cached.Seasons[name]; !ok {
			return dsclimerr.Configuration("learning cache: missing season %q", name)
		}
	}
	return nil
}

// MergedDayCoverage reports an OverlappingSeasons error if any day index
// is claimed by more than one season's Time slice (LearningRecord
// invariant, spec §3). Days outside every configured season's months
// are not required to appear at all.
func MergedDayCoverage(rec *types.LearningRecord) error {
	covered := make(map[int]bool)
	for _, sl := range rec.Seasons {
		for _, d := range sl.Time {
			if covered[d.Index] {
				return dsclimerr.OverlappingSeasons("learning record: day index %d covered by more than one season", d.Index)
			}
			covered[d.Index] = true
		}
	}
	return nil
}
