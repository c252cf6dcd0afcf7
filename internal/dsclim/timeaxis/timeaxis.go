// Package timeaxis implements component A: mapping a calendar date to
// an index on a base-unit daily time axis, day-of-year extraction, and
// season-mask membership. Non-standard calendar conversion (noleap,
// 360_day) is a preprocessor concern and never reaches this package —
// every Day it produces assumes the standard Gregorian calendar.
package timeaxis

import (
	"time"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
)

// Axis maps calendar dates to a zero-based integer day offset from a
// reference date, under the standard Gregorian calendar.
type Axis struct {
	reference time.Time
}

// New builds an Axis referenced at the given calendar date.
func New(refYear, refMonth, refDay int) (*Axis, error) {
	if refMonth < 1 || refMonth > 12 {
		return nil, dsclimerr.Configuration("time axis reference month out of range: %d", refMonth)
	}
	return &Axis{reference: time.Date(refYear, time.Month(refMonth), refDay, 0, 0, 0, 0, time.UTC)}, nil
}

// Day builds a types.Day for the given calendar date, with its Index
// set to its offset on this axis.
func (a *Axis) Day(year, month, day int) types.Day {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	idx := int(t.Sub(a.reference).Hours() / 24)
	return types.Day{Year: year, Month: month, Day: day, Index: idx}
}

// Range builds the contiguous, inclusive sequence of days from
// (y0,m0,d0) to (y1,m1,d1), enforcing daily cadence (spec: CalendarError
// on non-daily cadence in large-scale inputs — here this is the
// construction primitive that guarantees it by always stepping by one
// day).
func (a *Axis) Range(y0, m0, d0, y1, m1, d1 int) ([]types.Day, error) {
	start := time.Date(y0, time.Month(m0), d0, 0, 0, 0, 0, time.UTC)
	end := time.Date(y1, time.Month(m1), d1, 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		return nil, dsclimerr.Configuration("time axis range end %v precedes start %v", end, start)
	}
	var days []types.Day
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		days = append(days, a.Day(t.Year(), int(t.Month()), t.Day()))
	}
	return days, nil
}

// VerifyDailyCadence checks that a loaded day sequence advances by
// exactly one index per step. Range satisfies the "daily step enforced"
// contract by construction; a day slice read from a data file is not
// Range's output and must be checked explicitly before the rest of the
// pipeline trusts its spacing.
func VerifyDailyCadence(days []types.Day) error {
	for i := 1; i < len(days); i++ {
		if days[i].Index != days[i-1].Index+1 {
			return dsclimerr.Calendar("day %04d-%02d-%02d follows %04d-%02d-%02d with a non-daily step (index %d -> %d)",
				days[i].Year, days[i].Month, days[i].Day,
				days[i-1].Year, days[i-1].Month, days[i-1].Day,
				days[i-1].Index, days[i].Index)
		}
	}
	return nil
}

// DayOfYear returns the 1..366 ordinal of d's calendar date, treating
// February 29 as its own distinct value rather than folding it into
// February 28 or March 1 (spec §4.G.1).
func DayOfYear(d types.Day) int {
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return t.YearDay()
}

// DayOfYearDistance returns the absolute difference |a-b| between two
// day-of-year ordinals. No wraparound across year end is applied, and
// no adjustment is made for Feb 29 in leap years.
func DayOfYearDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d
}

// SeasonMask classifies every month 1..12 against the configured
// seasons. A month claimed by more than one season is a configuration
// error; an unclaimed month is reported as "" (never downscaled, per
// spec §9 — this is not an error).
func SeasonMask(seasons []types.Season) (map[int]string, error) {
	mask := make(map[int]string, 12)
	for _, s := range seasons {
		for m := range s.Months {
			if m < 1 || m > 12 {
				return nil, dsclimerr.Configuration("season %q claims out-of-range month %d", s.Name, m)
			}
			if owner, ok := mask[m]; ok {
				return nil, dsclimerr.Configuration("month %d claimed by both season %q and %q", m, owner, s.Name)
			}
			mask[m] = s.Name
		}
	}
	return mask, nil
}

// SeasonOf reports the season name owning day d's month, and ok=false
// if no configured season claims that month.
func SeasonOf(mask map[int]string, d types.Day) (string, bool) {
	name, ok := mask[d.Month]
	return name, ok
}

// RestrictToSeason returns, in original order, the subsequence of days
// whose month belongs to the named season.
func RestrictToSeason(days []types.Day, season types.Season) []types.Day {
	out := make([]types.Day, 0, len(days))
	for _, d := range days {
		if season.HasMonth(d.Month) {
			out = append(out, d)
		}
	}
	return out
}

// IntersectByIndex returns, as a set keyed by Day.Index, the index
// values present in both slices — used to build the reference window
// (control run ∩ learning period).
func IntersectByIndex(a, b []types.Day) map[int]bool {
	setA := make(map[int]bool, len(a))
	for _, d := range a {
		setA[d.Index] = true
	}
	out := make(map[int]bool)
	for _, d := range b {
		if setA[d.Index] {
			out[d.Index] = true
		}
	}
	return out
}
