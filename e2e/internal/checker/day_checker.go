// Package checker verifies a run's emitted downscaled-day records
// against a scenario's expectations.
package checker

import (
	"fmt"
	"math"

	"github.com/cerfacs-go/dsclim/e2e/internal/scenario"
	"github.com/cerfacs-go/dsclim/internal/dsclim/emit"
)

const defaultTolerance = 1e-6

// CheckDayExpectation compares one DayExpectation against the emitted
// record for the same date, returning (passed, reason).
func CheckDayExpectation(exp scenario.DayExpectation, byDate map[string]emit.DownscaledDay) (bool, string) {
	day, ok := byDate[exp.Date]
	if !ok {
		return false, fmt.Sprintf("no record emitted for %s", exp.Date)
	}
	if day.Sentinel {
		return false, fmt.Sprintf("%s: record is a sentinel slot", exp.Date)
	}

	if exp.AnalogDate != "" && day.AnalogDate != exp.AnalogDate {
		return false, fmt.Sprintf("%s: analog date = %q, want %q", exp.Date, day.AnalogDate, exp.AnalogDate)
	}

	if exp.DeltaApprox != nil {
		tol := exp.Tolerance
		if tol == 0 {
			tol = defaultTolerance
		}
		if math.Abs(day.Delta-*exp.DeltaApprox) > tol {
			return false, fmt.Sprintf("%s: delta = %v, want %v (tolerance %v)", exp.Date, day.Delta, *exp.DeltaApprox, tol)
		}
	}

	return true, "ok"
}
