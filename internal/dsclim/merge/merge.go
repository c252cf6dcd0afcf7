// Package merge implements component I: combine the per-season analog
// records produced by the Analog Finder and Delta Engine into a single
// global, time-ordered record (spec §4.I).
package merge

import (
	"sort"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// SeasonOutput is one season's finished analog records plus the
// per-season cluster distance used for the projection onto the global
// axis.
type SeasonOutput struct {
	Season string
	Days   []types.Day
	Records []types.AnalogRecord
	Distance [][]float64 // [t][c], aligned with Days/Records
}

// GlobalRecord is one slot of the merged global time axis.
type GlobalRecord struct {
	Day      types.Day
	Analog   *types.AnalogRecord // nil if no season covers this day (sentinel slot)
	Distance []float64           // nil if no season covers this day
}

// Merge combines every season's output into a single global,
// time-ordered slice. A day claimed by more than one season is a
// configuration error (OverlappingSeasons); a day in allDays claimed by
// no season is emitted as a sentinel slot with Analog == nil.
func Merge(allDays []types.Day, seasons []SeasonOutput) ([]GlobalRecord, error) {
	byIndex := make(map[int]GlobalRecord, len(allDays))
	claimed := make(map[int]string)

	for _, so := range seasons {
		if len(so.Days) != len(so.Records) {
			return nil, dsclimerr.DimensionMismatch("season merger: season %q has %d days but %d records", so.Season, len(so.Days), len(so.Records))
		}
		for i, day := range so.Days {
			if owner, ok := claimed[day.Index]; ok {
				return nil, dsclimerr.OverlappingSeasons("season merger: day %d-%02d-%02d claimed by both %q and %q", day.Year, day.Month, day.Day, owner, so.Season)
			}
			claimed[day.Index] = so.Season

			rec := so.Records[i]
			var dist []float64
			if so.Distance != nil {
				dist = so.Distance[i]
			}
			byIndex[day.Index] = GlobalRecord{Day: day, Analog: &rec, Distance: dist}
		}
	}

	out := make([]GlobalRecord, len(allDays))
	for i, day := range allDays {
		if gr, ok := byIndex[day.Index]; ok {
			out[i] = gr
			continue
		}
		out[i] = GlobalRecord{Day: day} // sentinel: no season covers this day
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Day.Index < out[j].Day.Index })
	return out, nil
}
