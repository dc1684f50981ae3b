package report

import (
	"fmt"
	"strings"
)

// RenderSummary renders an analyzer summary as a console table.
func RenderSummary(s *Summary) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "\n%s\n", line)
	fmt.Fprintf(&b, "AUTOMATION PERFORMANCE SUMMARY (%s)\n", s.ReportPeriod)
	fmt.Fprintf(&b, "%s\n", line)
	fmt.Fprintf(&b, "Total Runs: %d\n", s.Overall.TotalRuns)
	fmt.Fprintf(&b, "Success Rate: %.1f%%\n", s.Overall.SuccessRate)
	fmt.Fprintf(&b, "Average Duration: %.2fs\n", s.Overall.AvgDuration)
	fmt.Fprintf(&b, "Total Steps Executed: %d\n", s.Overall.TotalSteps)
	fmt.Fprintf(&b, "Unique Scripts: %d\n", s.Overall.UniqueScripts)

	b.WriteString("\nScript Performance:\n")
	fmt.Fprintf(&b, "%-30s %-8s %-12s %-12s\n", "Name", "Runs", "Avg Duration", "Success Rate")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 62))
	for _, st := range s.Scripts {
		fmt.Fprintf(&b, "%-30s %-8d %-12.2f %.1f%%\n", st.ScriptName, st.RunCount, st.AvgDuration, st.SuccessRate)
	}
	return b.String()
}

// RenderTrends renders a trend analysis as console tables.
func RenderTrends(t *Trends) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Performance trends for %s (%s)\n\n", t.ScriptName, t.AnalysisPeriod)

	fmt.Fprintf(&b, "%-12s %-6s %-10s %-10s %-10s %s\n", "Date", "Runs", "Avg", "Min", "Max", "Success")
	for _, d := range t.DailyTrends {
		fmt.Fprintf(&b, "%-12s %-6d %-10.2f %-10.2f %-10.2f %.1f%%\n",
			d.Date, d.RunCount, d.AvgDuration, d.MinDuration, d.MaxDuration, d.SuccessRate)
	}

	if len(t.StepAnalysis) > 0 {
		fmt.Fprintf(&b, "\n%-40s %-10s %-10s %-6s %s\n", "Step", "Avg", "Max", "Runs", "Success")
		for _, s := range t.StepAnalysis {
			fmt.Fprintf(&b, "%-40s %-10.3f %-10.3f %-6d %.1f%%\n",
				s.StepName, s.AvgDuration, s.MaxDuration, s.ExecutionCount, s.SuccessRate)
		}
	}
	return b.String()
}

// RenderBottlenecks renders bottlenecks as a console table.
func RenderBottlenecks(items []Bottleneck) string {
	if len(items) == 0 {
		return "No bottlenecks found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-35s %-12s %-8s %-8s %-6s %s\n", "Script", "Step", "Type", "Avg", "Max", "Count", "Failures")
	for _, it := range items {
		fmt.Fprintf(&b, "%-25s %-35s %-12s %-8.2f %-8.2f %-6d %.1f%%\n",
			it.ScriptName, it.StepName, it.StepType, it.AvgDuration, it.MaxDuration, it.Occurrences, it.FailureRate)
	}
	return b.String()
}

// RenderRuns renders a run listing as a console table.
func RenderRuns(runs []RunSummary) string {
	if len(runs) == 0 {
		return NoRunsMessage + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-25s %-19s %-10s %-7s %s\n", "Run ID", "Script", "Started", "Status", "Steps", "Success")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-36s %-25s %-19s %-10s %-7d %.1f%%\n",
			r.RunID, r.ScriptName, r.StartedAt.Format(dateTimeLayout), strings.ToUpper(r.Status), r.TotalSteps, r.SuccessRate)
	}
	return b.String()
}
