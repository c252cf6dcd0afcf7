package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/cerfacs-go/dsclim/e2e/internal/scenario"
)

// GenerateTimeline creates a human-readable report of a scenario run.
func GenerateTimeline(result *scenario.TestResult) string {
	var sb strings.Builder

	duration := result.EndTime.Sub(result.StartTime)

	sb.WriteString("╔══════════════════════════════════════════════════════════╗\n")
	sb.WriteString(fmt.Sprintf("║  Scenario: %-46s║\n", truncate(result.Scenario.Name, 46)))
	sb.WriteString(fmt.Sprintf("║  Duration: %-46s║\n", formatDuration(duration)))
	sb.WriteString("╚══════════════════════════════════════════════════════════╝\n\n")

	sb.WriteString("=== Day expectations ===\n")
	for _, d := range result.Days {
		icon := "✓"
		if !d.Passed {
			icon = "✗"
		}
		sb.WriteString(fmt.Sprintf("  %s %s: %s\n", icon, d.Date, d.Reason))
	}

	status := "✓ ALL TESTS PASSED"
	if result.FailedCount > 0 {
		status = fmt.Sprintf("✗ %d TEST(S) FAILED", result.FailedCount)
	}

	sb.WriteString("\n╔══════════════════════════════════════════════════════════╗\n")
	sb.WriteString("║  SUMMARY                                                 ║\n")
	sb.WriteString(fmt.Sprintf("║  Passed: %-48d║\n", result.PassedCount))
	sb.WriteString(fmt.Sprintf("║  Failed: %-48d║\n", result.FailedCount))
	sb.WriteString(fmt.Sprintf("║  Status: %-48s║\n", status))
	sb.WriteString("╚══════════════════════════════════════════════════════════╝\n")

	return sb.String()
}

func formatDuration(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	remainingSeconds := seconds - float64(minutes*60)
	return fmt.Sprintf("%dm %.1fs", minutes, remainingSeconds)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
