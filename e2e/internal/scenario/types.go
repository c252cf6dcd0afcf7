package scenario

import "time"

// Scenario describes a complete end-to-end downscaling run: a data
// directory and config to feed internal/dsclim/orchestrate, plus the
// outcome expected from it.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// DataDir holds all_days.json and one <season>.json per configured
	// season, in the format internal/dsclim/datasource.Load reads.
	DataDir string `yaml:"data_dir"`
	// ConfigPath is a YAML config file loadable by pkg/config.Load.
	ConfigPath string `yaml:"config_path"`

	// ExpectErrorClass, when set, asserts the run fails with a
	// dsclimerr.Class of this name (e.g. "NoObservationsInNeighborhood")
	// instead of producing output. Mutually exclusive with Days.
	ExpectErrorClass string `yaml:"expect_error_class,omitempty"`

	// Days lists the per-model-day outcomes the run must produce.
	Days []DayExpectation `yaml:"days,omitempty"`
}

// DayExpectation pins down what a single downscaled model day's
// emitted record must look like.
type DayExpectation struct {
	Date string `yaml:"date"` // YYYY-MM-DD

	// AnalogDate, when set, must equal the chosen analog's date exactly.
	AnalogDate string `yaml:"analog_date,omitempty"`
	// DeltaApprox, when set, asserts the emitted delta is within
	// Tolerance of this value (default tolerance 1e-6).
	DeltaApprox *float64 `yaml:"delta_approx,omitempty"`
	Tolerance   float64  `yaml:"tolerance,omitempty"`
}

// TestResult is the outcome of running one Scenario.
type TestResult struct {
	Scenario    *Scenario
	StartTime   time.Time
	EndTime     time.Time
	Passed      bool
	PassedCount int
	FailedCount int
	Days        []DayExpectationResult
}

// DayExpectationResult is the outcome of checking one DayExpectation.
type DayExpectationResult struct {
	Date   string
	Passed bool
	Reason string
}
