// Package datasource loads one run's inputs from a directory of
// pre-decoded JSON files into the shapes internal/dsclim/orchestrate
// needs. It owns the input-file I/O of the domain stack; the learning
// cache in learningstore reads and writes its own files (spec.md places
// "data-file discovery" out of the algorithmic core): the projection of
// raw reanalysis/observation fields onto PCs, grid masks and
// precipitation fields is assumed to have already happened upstream,
// the same division of labor the teacher's collector draws between
// sensor ingestion and the stateless behavior/occupancy analyzers.
package datasource

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/learning"
	"github.com/cerfacs-go/dsclim/internal/dsclim/orchestrate"
	"github.com/cerfacs-go/dsclim/internal/dsclim/regression"
	"github.com/cerfacs-go/dsclim/internal/dsclim/timeaxis"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/cerfacs-go/dsclim/pkg/config"
)

// seasonFile is the on-disk shape of one season's learning and
// downscaling-period data, named "<dir>/<season-name>.json".
type seasonFile struct {
	Learning learningFields `json:"learning"`
	Model    modelFields    `json:"model"`
}

type learningFields struct {
	Days               []types.Day   `json:"days"`
	ReanalysisPC       [][]float64   `json:"reanalysis_pc"`
	ReanalysisSingular []float64     `json:"reanalysis_singular"`
	ObsPC              [][]float64   `json:"obs_pc"`
	ObsSingular        []float64     `json:"obs_singular"`
	ReferenceWindow    []bool        `json:"reference_window"`
	GridLon            [][]float64   `json:"grid_lon"`
	GridLat            [][]float64   `json:"grid_lat"`
	PrecipField        [][][]float64 `json:"precip_field"`
	PrecipMissing      [][][]bool    `json:"precip_missing,omitempty"`
	SecondaryRaw       []float64     `json:"secondary_raw,omitempty"`

	// SecondaryField/SecondaryFieldMissing carry the learning period's
	// gridded secondary field, [t][y][x], only present for seasons
	// with secondary_cov set.
	SecondaryField        [][][]float64 `json:"secondary_field,omitempty"`
	SecondaryFieldMissing [][][]bool    `json:"secondary_field_missing,omitempty"`

	// CovMask is the fixed grid mask shared by every day's secondary
	// field when secondary_cov is set; season-level, not per-day.
	CovMask [][]bool `json:"cov_mask,omitempty"`
}

type modelFields struct {
	Days            []types.Day `json:"days"`
	PC              [][]float64 `json:"pc"`
	SecondaryRaw    []float64   `json:"secondary_raw,omitempty"`
	ReferenceWindow []bool      `json:"reference_window,omitempty"`

	// Field/FieldMissing carry the downscaling period's gridded
	// secondary field, [t][y][x], only present for seasons with
	// secondary_cov set.
	Field        [][][]float64 `json:"field,omitempty"`
	FieldMissing [][][]bool    `json:"field_missing,omitempty"`
}

// fields2D zips a [t][y][x] value cube and its matching missing-mask
// cube into one types.Field2D per day. A nil missing cube means no
// cell is missing.
func fields2D(values [][][]float64, missing [][][]bool) []types.Field2D {
	if values == nil {
		return nil
	}
	out := make([]types.Field2D, len(values))
	for t, day := range values {
		var dayMissing [][]bool
		if missing != nil {
			dayMissing = missing[t]
		}
		ny := len(day)
		nx := 0
		if ny > 0 {
			nx = len(day[0])
		}
		out[t] = types.Field2D{NY: ny, NX: nx, Values: day, Missing: dayMissing}
	}
	return out
}

// Load reads "<dir>/all_days.json" plus one "<dir>/<season-name>.json"
// file per season in cfg.Seasons, and assembles them into
// orchestrate.RunInputs. cfg is assumed already validated.
func Load(dir string, cfg *config.Config) (orchestrate.RunInputs, error) {
	var allDays []types.Day
	if err := readJSON(filepath.Join(dir, "all_days.json"), &allDays); err != nil {
		return orchestrate.RunInputs{}, err
	}
	if err := timeaxis.VerifyDailyCadence(allDays); err != nil {
		return orchestrate.RunInputs{}, err
	}

	anchors := make([]regression.AnchorPoint, len(cfg.Regression.AnchorPoints))
	for i, a := range cfg.Regression.AnchorPoints {
		anchors[i] = regression.AnchorPoint{Lon: a.Lon, Lat: a.Lat}
	}

	plans := make([]orchestrate.SeasonPlan, len(cfg.Seasons))
	for i, season := range cfg.Seasons {
		var sf seasonFile
		path := filepath.Join(dir, season.Name+".json")
		if err := readJSON(path, &sf); err != nil {
			return orchestrate.RunInputs{}, err
		}
		if err := timeaxis.VerifyDailyCadence(sf.Learning.Days); err != nil {
			return orchestrate.RunInputs{}, err
		}
		if err := timeaxis.VerifyDailyCadence(sf.Model.Days); err != nil {
			return orchestrate.RunInputs{}, err
		}

		plans[i] = orchestrate.SeasonPlan{
			Season: season,
			Learning: learning.SeasonInputs{
				Days:               sf.Learning.Days,
				ReanalysisPC:       sf.Learning.ReanalysisPC,
				ReanalysisSingular: sf.Learning.ReanalysisSingular,
				ObsPC:              sf.Learning.ObsPC,
				ObsSingular:        sf.Learning.ObsSingular,
				ReferenceWindow:    sf.Learning.ReferenceWindow,
				GridLon:            sf.Learning.GridLon,
				GridLat:            sf.Learning.GridLat,
				DistThreshMeters:   cfg.Regression.DistThreshMeters,
				PrecipField:        sf.Learning.PrecipField,
				PrecipMissing:      sf.Learning.PrecipMissing,
				SecondaryRaw:       sf.Learning.SecondaryRaw,
				SecondaryField:     fields2D(sf.Learning.SecondaryField, sf.Learning.SecondaryFieldMissing),
			},
			Model: orchestrate.ModelSeasonData{
				Days:            sf.Model.Days,
				PC:              sf.Model.PC,
				SecondaryRaw:    sf.Model.SecondaryRaw,
				ReferenceWindow: sf.Model.ReferenceWindow,
				Field:           fields2D(sf.Model.Field, sf.Model.FieldMissing),
				CovMask:         sf.Learning.CovMask,
			},
		}
	}

	return orchestrate.RunInputs{
		Seasons:           plans,
		NEofRea:           cfg.Eof.NEofRea,
		NEofObs:           cfg.Eof.NEofObs,
		AnchorPoints:      anchors,
		AllDays:           allDays,
		UseDownscaledYear: cfg.Search.UseDownscaledYear,
		OnlyWT:            cfg.Search.OnlyWT,
		CacheKey:          cfg.Learning.CacheKey,
		KMeansRestarts:    cfg.Learning.KMeansRestarts,
		KMeansSeed:        cfg.MasterSeed,
	}, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dsclimerr.IO(err, "datasource: reading %q", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return dsclimerr.IO(err, "datasource: decoding %q", path)
	}
	return nil
}
