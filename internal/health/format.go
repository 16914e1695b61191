package health

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// statusGlyph maps a status to its table marker.
func statusGlyph(s Status) string {
	switch s {
	case StatusHealthy:
		return "✓"
	case StatusDegraded:
		return "!"
	default:
		return "✗"
	}
}

// FormatTable writes the report as a human-readable table.
func FormatTable(w io.Writer, report *Report) {
	ts := time.UnixMilli(report.TimestampMs).UTC().Format(time.RFC3339)
	fmt.Fprintf(w, "Overall: %s  (checked %s)\n\n", report.Overall, ts)

	fmt.Fprintf(w, "  %-2s %-14s %-10s %-9s %s\n", "", "COMPONENT", "STATUS", "TIME", "MESSAGE")
	fmt.Fprintf(w, "  %-2s %-14s %-10s %-9s %s\n", "", "--------------", "----------", "---------", "----------------------------------------")

	// Stable order for humans and for tests.
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := report.Checks[name]
		fmt.Fprintf(w, "  %-2s %-14s %-10s %-9s %s\n",
			statusGlyph(check.Status),
			name,
			check.Status,
			fmt.Sprintf("%.1fms", check.ElapsedMs),
			check.Message,
		)
	}
}

// FormatJSON writes the report as pretty-printed JSON, for dashboards and
// scripting (`warren status --output json | jq .status`).
func FormatJSON(w io.Writer, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(data)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
