package report

import (
	"fmt"
	"strings"
)

const dateTimeLayout = "2006-01-02 15:04:05"

var rule = strings.Repeat("=", 80)

func section(b *strings.Builder, title string) {
	b.WriteString(rule + "\n")
	b.WriteString(title + "\n")
	b.WriteString(rule + "\n\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// SummaryReport renders the human-readable summary of a run: header, step
// breakdown, browser performance and per-action-type statistics. An empty
// runID selects the latest run.
func (r *Reporter) SummaryReport(runID string) (string, error) {
	run, err := r.resolveRun(runID)
	if err != nil {
		return "", err
	}
	if run == nil {
		if runID == "" {
			return NoRunsMessage, nil
		}
		return fmt.Sprintf("Run %s not found.", runID), nil
	}

	steps, err := r.RunSteps(run.RunID)
	if err != nil {
		return "", err
	}
	metrics, err := r.BrowserMetrics(run.RunID)
	if err != nil {
		return "", err
	}
	actions, err := r.ActionMetrics(run.RunID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	section(&b, "AUTOMATION RUN SUMMARY")

	completed := "N/A"
	if run.CompletedAt != nil {
		completed = run.CompletedAt.Format(dateTimeLayout)
	}

	fmt.Fprintf(&b, "Script Name:      %s\n", run.ScriptName)
	fmt.Fprintf(&b, "Session ID:       %s\n", run.SessionID)
	fmt.Fprintf(&b, "Status:           %s\n", r.displayStatus(run))
	fmt.Fprintf(&b, "Environment:      %s\n", orNA(run.Environment))
	fmt.Fprintf(&b, "Browser:          %s\n", orNA(run.BrowserType))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Started:          %s\n", run.StartedAt.Format(dateTimeLayout))
	fmt.Fprintf(&b, "Completed:        %s\n", completed)
	fmt.Fprintf(&b, "Total Duration:   %.2fs\n", run.TotalDuration)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total Steps:      %d\n", run.TotalSteps)
	fmt.Fprintf(&b, "Failed Steps:     %d\n", run.FailedSteps)
	fmt.Fprintf(&b, "Success Rate:     %.1f%%\n", run.SuccessRate)
	b.WriteString("\n")

	if len(run.Tags) > 0 {
		fmt.Fprintf(&b, "Tags:             %s\n\n", strings.Join(run.Tags, ", "))
	}

	if len(steps) > 0 {
		section(&b, "STEP BREAKDOWN")
		for _, s := range steps {
			icon := "✗"
			if s.Status == "success" {
				icon = "✓"
			}
			fmt.Fprintf(&b, "%s [%d] %s\n", icon, s.Order, s.Name)
			fmt.Fprintf(&b, "    Type: %s | Duration: %.2fs | Status: %s\n", s.Type, s.Duration, s.Status)
			if s.ErrorMessage != "" {
				fmt.Fprintf(&b, "    Error: %s\n", s.ErrorMessage)
			}
			b.WriteString("\n")
		}
	}

	if len(metrics) > 0 {
		section(&b, "BROWSER PERFORMANCE METRICS")
		stats := pageLoadStats(metrics)
		fmt.Fprintf(&b, "Total Page Loads:     %d\n", stats.count)
		fmt.Fprintf(&b, "Avg Page Load Time:   %.2fs\n", stats.avg)
		fmt.Fprintf(&b, "Min Page Load Time:   %.2fs\n", stats.min)
		fmt.Fprintf(&b, "Max Page Load Time:   %.2fs\n", stats.max)
		b.WriteString("\n")
	}

	if len(actions) > 0 {
		section(&b, "ACTION METRICS")
		for _, st := range actionStats(actions) {
			fmt.Fprintf(&b, "%s:\n", strings.ToUpper(st.actionType))
			fmt.Fprintf(&b, "  Count: %d | Avg Duration: %.3fs | Success Rate: %.1f%%\n", st.count, st.avgDuration(), st.successRate())
		}
		b.WriteString("\n")
	}

	b.WriteString(rule)
	return b.String(), nil
}

// DetailedReport is the summary followed by the full action log.
func (r *Reporter) DetailedReport(runID string) (string, error) {
	summary, err := r.SummaryReport(runID)
	if err != nil {
		return "", err
	}

	run, err := r.resolveRun(runID)
	if err != nil || run == nil {
		return summary, err
	}

	actions, err := r.ActionMetrics(run.RunID)
	if err != nil {
		return "", err
	}
	if len(actions) == 0 {
		return summary, nil
	}

	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n")
	section(&b, "DETAILED ACTION LOG")

	for i, a := range actions {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.ToUpper(a.ActionType))
		fmt.Fprintf(&b, "    Target: %s\n", orNA(a.TargetElement))
		fmt.Fprintf(&b, "    Duration: %.3fs\n", a.Duration)
		success := "No"
		if a.Success {
			success = "Yes"
		}
		fmt.Fprintf(&b, "    Success: %s\n", success)
		if a.ActionValue != "" {
			fmt.Fprintf(&b, "    Value: %s\n", a.ActionValue)
		}
		if a.RetryCount > 0 {
			fmt.Fprintf(&b, "    Retries: %d\n", a.RetryCount)
		}
		if a.ErrorDetails != "" {
			fmt.Fprintf(&b, "    Error: %s\n", a.ErrorDetails)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

type loadStats struct {
	count         int
	avg, min, max float64
}

func pageLoadStats(metrics []BrowserMetric) loadStats {
	var st loadStats
	var total float64
	for _, m := range metrics {
		if m.PageLoadTime == nil {
			continue
		}
		v := *m.PageLoadTime
		if st.count == 0 || v < st.min {
			st.min = v
		}
		if v > st.max {
			st.max = v
		}
		total += v
		st.count++
	}
	if st.count > 0 {
		st.avg = total / float64(st.count)
	}
	return st
}

type typeStats struct {
	actionType    string
	count         int
	totalDuration float64
	successes     int
}

func (s typeStats) avgDuration() float64 {
	if s.count == 0 {
		return 0
	}
	return s.totalDuration / float64(s.count)
}

func (s typeStats) successRate() float64 {
	if s.count == 0 {
		return 0
	}
	return float64(s.successes) / float64(s.count) * 100
}

// actionStats groups actions by type in first-seen order.
func actionStats(actions []Action) []typeStats {
	index := map[string]int{}
	var out []typeStats
	for _, a := range actions {
		typ := a.ActionType
		if typ == "" {
			typ = "unknown"
		}
		i, ok := index[typ]
		if !ok {
			i = len(out)
			index[typ] = i
			out = append(out, typeStats{actionType: typ})
		}
		out[i].count++
		out[i].totalDuration += a.Duration
		if a.Success {
			out[i].successes++
		}
	}
	return out
}
