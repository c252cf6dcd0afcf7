package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cerfacs-go/dsclim/e2e/internal/executor"
	"github.com/cerfacs-go/dsclim/e2e/internal/reporter"
	"github.com/cerfacs-go/dsclim/e2e/internal/scenario"
)

func main() {
	scenarioPath := flag.String("scenario", "", "Path to YAML scenario file (required)")
	outputDir := flag.String("output-dir", "./test-output", "Output directory for test artifacts")
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintf(os.Stderr, "Error: --scenario is required\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "", log.Ltime)
	if !*verbose {
		logger.SetOutput(os.Stderr)
	}

	logger.Printf("Loading scenario from %s", *scenarioPath)
	scen, err := scenario.LoadScenario(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load scenario: %v\n", err)
		os.Exit(1)
	}

	runner := executor.NewRunner(logger)

	result, err := runner.Run(context.Background(), scen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Test execution failed: %v\n", err)
		os.Exit(1)
	}

	scenarioName := strings.TrimSuffix(filepath.Base(*scenarioPath), ".yaml")

	timeline := reporter.GenerateTimeline(result)
	fmt.Println(timeline)

	timelinePath := filepath.Join(*outputDir, "timelines", scenarioName+".txt")
	if err := reporter.SaveTimeline(timeline, timelinePath); err != nil {
		logger.Printf("Warning: Failed to save timeline: %v", err)
	} else {
		logger.Printf("Timeline saved to %s", timelinePath)
	}

	summaryPath := filepath.Join(*outputDir, "summaries", scenarioName+".json")
	if err := reporter.SaveSummary(result, summaryPath); err != nil {
		logger.Printf("Warning: Failed to save summary: %v", err)
	} else {
		logger.Printf("Summary saved to %s", summaryPath)
	}

	if result.Passed {
		os.Exit(0)
	}
	os.Exit(1)
}
