// Package executor runs a scenario end to end: load config and data,
// drive internal/dsclim/orchestrate, and check the emitted records.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cerfacs-go/dsclim/e2e/internal/checker"
	"github.com/cerfacs-go/dsclim/e2e/internal/scenario"
	"github.com/cerfacs-go/dsclim/internal/dsclim/datasource"
	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/emit"
	"github.com/cerfacs-go/dsclim/internal/dsclim/orchestrate"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/cerfacs-go/dsclim/pkg/config"
)

// Runner executes a Scenario in-process against the orchestrator -
// no broker, cache, or database required.
type Runner struct {
	logger *log.Logger
}

// NewRunner creates a new test runner.
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{logger: logger}
}

// Run loads the scenario's config and data, runs the pipeline, and
// checks the outcome against the scenario's expectations.
func (r *Runner) Run(ctx context.Context, s *scenario.Scenario) (*scenario.TestResult, error) {
	r.logger.Printf("Starting scenario: %s", s.Name)
	r.logger.Printf("Description: %s", s.Description)

	startTime := time.Now()

	cfg := config.NewConfig()
	if err := config.Load(s.ConfigPath, cfg); err != nil {
		return nil, fmt.Errorf("loading config %q: %w", s.ConfigPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	in, err := datasource.Load(s.DataDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("loading run inputs from %q: %w", s.DataDir, err)
	}

	out := make(chan emit.DownscaledDay, len(in.AllDays))
	emitter := emit.NewChannelEmitter(out)
	anchor := orchestrate.Anchor{Lon: cfg.Geo.Lon, Lat: cfg.Geo.Lat}
	run := types.RunMetadata{RunID: "e2e-" + s.Name, GeneratedAt: startTime}

	runErr := orchestrate.Run(ctx, in, nil, emitter, run, anchor, nil)
	close(out)

	if s.ExpectErrorClass != "" {
		return r.checkExpectedError(s, startTime, runErr)
	}
	if runErr != nil {
		return nil, fmt.Errorf("run failed unexpectedly: %w", runErr)
	}

	byDate := make(map[string]emit.DownscaledDay, len(out))
	for d := range out {
		byDate[d.Date] = d
	}

	var results []scenario.DayExpectationResult
	passed, failed := 0, 0
	for _, de := range s.Days {
		ok, reason := checker.CheckDayExpectation(de, byDate)
		results = append(results, scenario.DayExpectationResult{Date: de.Date, Passed: ok, Reason: reason})
		if ok {
			passed++
		} else {
			failed++
			r.logger.Printf("FAIL %s: %s", de.Date, reason)
		}
	}

	return &scenario.TestResult{
		Scenario:    s,
		StartTime:   startTime,
		EndTime:     time.Now(),
		Passed:      failed == 0,
		PassedCount: passed,
		FailedCount: failed,
		Days:        results,
	}, nil
}

func (r *Runner) checkExpectedError(s *scenario.Scenario, startTime time.Time, runErr error) (*scenario.TestResult, error) {
	if runErr == nil {
		return &scenario.TestResult{
			Scenario: s, StartTime: startTime, EndTime: time.Now(),
			Passed: false, FailedCount: 1,
			Days: []scenario.DayExpectationResult{{Reason: fmt.Sprintf("expected error class %q, run succeeded", s.ExpectErrorClass)}},
		}, nil
	}
	class, ok := dsclimerr.As(runErr)
	got := string(class)
	passed := ok && got == s.ExpectErrorClass
	reason := "ok"
	if !passed {
		reason = fmt.Sprintf("expected error class %q, got %q (err: %v)", s.ExpectErrorClass, got, runErr)
	}
	failed := 0
	if !passed {
		failed = 1
	}
	return &scenario.TestResult{
		Scenario: s, StartTime: startTime, EndTime: time.Now(),
		Passed: passed, PassedCount: boolToInt(passed), FailedCount: failed,
		Days: []scenario.DayExpectationResult{{Passed: passed, Reason: reason}},
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
