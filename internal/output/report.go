package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/torosent/rulefire/internal/metrics"
	"github.com/torosent/rulefire/internal/runner"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, summary runner.Summary, stats metrics.Stats) {
	title := "Run Results"
	if summary.Cancelled {
		title = "Run Results (cancelled)"
	}
	fmt.Fprintf(w, "\n--- %s ---\n", title)
	fmt.Fprintf(w, "Run ID:            %s\n", summary.RunID)
	fmt.Fprintf(w, "Total Items:       %d\n", summary.Total)
	fmt.Fprintf(w, "Successful:        %d\n", summary.Succeeded)
	fmt.Fprintf(w, "Failed:            %d\n", summary.Failed)
	if pending := summary.Total - summary.Succeeded - summary.Failed; pending > 0 {
		fmt.Fprintf(w, "Not Dispatched:    %d\n", pending)
	}
	fmt.Fprintf(w, "Duration:          %s\n", summary.Duration)
	fmt.Fprintf(w, "Log File:          %s\n", summary.LogFile)
	fmt.Fprintf(w, "CSV File:          %s\n", summary.CSVFile)

	if stats.Total == 0 {
		return
	}
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range metrics.FlattenStatusCodes(stats.StatusCodes) {
			fmt.Fprintf(w, "  %s: %d\n", row.Code, row.Count)
		}
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		reasons := make([]string, 0, len(stats.Errors))
		for reason := range stats.Errors {
			reasons = append(reasons, reason)
		}
		sort.Slice(reasons, func(i, j int) bool {
			if stats.Errors[reasons[i]] == stats.Errors[reasons[j]] {
				return reasons[i] < reasons[j]
			}
			return stats.Errors[reasons[i]] > stats.Errors[reasons[j]]
		})
		for _, reason := range reasons {
			fmt.Fprintf(w, "  %s: %d\n", reason, stats.Errors[reason])
		}
	}
}

// JSONReport is the machine-readable form of a finished run.
type JSONReport struct {
	runner.Summary
	DurationMs float64       `json:"duration_ms"`
	Metrics    metrics.Stats `json:"metrics"`
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, summary runner.Summary, stats metrics.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(JSONReport{
		Summary:    summary,
		DurationMs: float64(summary.Duration.Microseconds()) / 1000,
		Metrics:    stats,
	})
}
