package report

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/rpacore/pkg/performance"
)

// DefaultBottleneckThreshold is the minimum step duration, in seconds, that
// counts as a bottleneck.
const DefaultBottleneckThreshold = 5.0

// Analyzer aggregates data across runs.
type Analyzer struct {
	db  *sql.DB
	now func() time.Time
}

// NewAnalyzer reads from an open database.
func NewAnalyzer(db *sql.DB) *Analyzer {
	return &Analyzer{db: db, now: time.Now}
}

func (a *Analyzer) since(days int) string {
	return performance.FormatTime(a.now().AddDate(0, 0, -days))
}

// scriptMatcher builds a script name filter. Empty matches everything. A
// name equal to the pattern always matches, so names holding glob
// metacharacters (create_[v2]) can still be selected exactly; otherwise the
// pattern is a glob (create_*). A pattern that is not a valid glob matches
// by name only.
func scriptMatcher(pattern string) func(string) bool {
	if pattern == "" {
		return func(string) bool { return true }
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return func(name string) bool { return name == pattern }
	}
	return func(name string) bool { return name == pattern || g.Match(name) }
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round(float64(part)/float64(whole)*100, 1)
}

// RecentRuns lists runs started in the last days, newest first, optionally
// filtered by a script name pattern.
func (a *Analyzer) RecentRuns(days int, scriptPattern string) ([]RunSummary, error) {
	match := scriptMatcher(scriptPattern)

	rows, err := a.db.Query(`SELECT `+runColumns+` FROM automation_runs
		WHERE started_at >= ? ORDER BY started_at DESC, rowid DESC`, a.since(days))
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	runs, err := collectRuns(rows)
	if err != nil {
		return nil, err
	}

	filtered := runs[:0]
	for _, r := range runs {
		if match(r.ScriptName) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// RunDetails returns a run with its steps and browser samples, or nil when
// the run does not exist.
func (a *Analyzer) RunDetails(runID string) (*RunDetails, error) {
	run, err := NewReporter(a.db).RunByID(runID)
	if err != nil || run == nil {
		return nil, err
	}

	details := &RunDetails{Run: run}
	if details.Steps, err = querySteps(a.db, runID); err != nil {
		return nil, err
	}
	if details.BrowserMetrics, err = queryBrowserMetrics(a.db, runID); err != nil {
		return nil, err
	}
	return details, nil
}

// PerformanceTrends rolls up a script's runs by day and its steps by name.
func (a *Analyzer) PerformanceTrends(scriptName string, days int) (*Trends, error) {
	since := a.since(days)
	trends := &Trends{
		ScriptName:     scriptName,
		AnalysisPeriod: fmt.Sprintf("%d days", days),
		DailyTrends:    []DailyTrend{},
		StepAnalysis:   []StepTrend{},
	}

	rows, err := a.db.Query(`
		SELECT DATE(started_at) AS run_date,
		       AVG(total_duration), MIN(total_duration), MAX(total_duration),
		       COUNT(*), SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END)
		FROM automation_runs
		WHERE script_name = ? AND started_at >= ?
		GROUP BY DATE(started_at)
		ORDER BY run_date`, scriptName, since)
	if err != nil {
		return nil, fmt.Errorf("query daily trends: %w", err)
	}
	for rows.Next() {
		var (
			d           DailyTrend
			avg, lo, hi sql.NullFloat64
			successes   int
		)
		if err := rows.Scan(&d.Date, &avg, &lo, &hi, &d.RunCount, &successes); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan daily trend: %w", err)
		}
		d.AvgDuration = round(avg.Float64, 2)
		d.MinDuration = round(lo.Float64, 2)
		d.MaxDuration = round(hi.Float64, 2)
		d.SuccessRate = percent(successes, d.RunCount)
		trends.DailyTrends = append(trends.DailyTrends, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = a.db.Query(`
		SELECT sm.step_name, AVG(sm.duration), MAX(sm.duration), COUNT(*),
		       SUM(CASE WHEN sm.status = 'success' THEN 1 ELSE 0 END)
		FROM step_metrics sm
		JOIN automation_runs ar ON sm.run_id = ar.id
		WHERE ar.script_name = ? AND ar.started_at >= ?
		GROUP BY sm.step_name
		ORDER BY AVG(sm.duration) DESC`, scriptName, since)
	if err != nil {
		return nil, fmt.Errorf("query step trends: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			s         StepTrend
			avg, hi   sql.NullFloat64
			successes int
		)
		if err := rows.Scan(&s.StepName, &avg, &hi, &s.ExecutionCount, &successes); err != nil {
			return nil, fmt.Errorf("scan step trend: %w", err)
		}
		s.AvgDuration = round(avg.Float64, 3)
		s.MaxDuration = round(hi.Float64, 3)
		s.SuccessRate = percent(successes, s.ExecutionCount)
		trends.StepAnalysis = append(trends.StepAnalysis, s)
	}
	return trends, rows.Err()
}

// Bottlenecks lists steps at least minDuration seconds long, grouped by
// script, step name and type, slowest average first.
func (a *Analyzer) Bottlenecks(scriptPattern string, minDuration float64) ([]Bottleneck, error) {
	match := scriptMatcher(scriptPattern)

	rows, err := a.db.Query(`
		SELECT ar.script_name, sm.step_name, sm.step_type,
		       AVG(sm.duration), MAX(sm.duration), COUNT(*),
		       SUM(CASE WHEN sm.status = 'failed' THEN 1 ELSE 0 END)
		FROM step_metrics sm
		JOIN automation_runs ar ON sm.run_id = ar.id
		WHERE sm.duration >= ?
		GROUP BY ar.script_name, sm.step_name, sm.step_type
		ORDER BY AVG(sm.duration) DESC`, minDuration)
	if err != nil {
		return nil, fmt.Errorf("query bottlenecks: %w", err)
	}
	defer rows.Close()

	bottlenecks := []Bottleneck{}
	for rows.Next() {
		var (
			b       Bottleneck
			avg, hi float64
		)
		if err := rows.Scan(&b.ScriptName, &b.StepName, &b.StepType, &avg, &hi, &b.Occurrences, &b.FailureCount); err != nil {
			return nil, fmt.Errorf("scan bottleneck: %w", err)
		}
		if !match(b.ScriptName) {
			continue
		}
		b.AvgDuration = round(avg, 2)
		b.MaxDuration = round(hi, 2)
		b.FailureRate = percent(b.FailureCount, b.Occurrences)
		bottlenecks = append(bottlenecks, b)
	}
	return bottlenecks, rows.Err()
}

// Summary computes overall and per-script statistics for the last days.
func (a *Analyzer) Summary(days int) (*Summary, error) {
	since := a.since(days)
	s := &Summary{
		ReportPeriod: fmt.Sprintf("%d days", days),
		GeneratedAt:  a.now(),
		Scripts:      []ScriptStats{},
	}

	var (
		successes, totalSteps sql.NullInt64
		avg                   sql.NullFloat64
	)
	err := a.db.QueryRow(`
		SELECT COUNT(*), SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
		       AVG(total_duration), SUM(total_steps), COUNT(DISTINCT script_name)
		FROM automation_runs WHERE started_at >= ?`, since).
		Scan(&s.Overall.TotalRuns, &successes, &avg, &totalSteps, &s.Overall.UniqueScripts)
	if err != nil {
		return nil, fmt.Errorf("query overall statistics: %w", err)
	}
	s.Overall.SuccessfulRuns = int(successes.Int64)
	s.Overall.SuccessRate = percent(s.Overall.SuccessfulRuns, s.Overall.TotalRuns)
	s.Overall.AvgDuration = round(avg.Float64, 2)
	s.Overall.TotalSteps = int(totalSteps.Int64)

	rows, err := a.db.Query(`
		SELECT script_name, COUNT(*), AVG(total_duration),
		       SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END)
		FROM automation_runs WHERE started_at >= ?
		GROUP BY script_name
		ORDER BY COUNT(*) DESC, script_name`, since)
	if err != nil {
		return nil, fmt.Errorf("query script statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			st        ScriptStats
			avg       sql.NullFloat64
			successes int
		)
		if err := rows.Scan(&st.ScriptName, &st.RunCount, &avg, &successes); err != nil {
			return nil, fmt.Errorf("scan script statistics: %w", err)
		}
		st.AvgDuration = round(avg.Float64, 2)
		st.SuccessRate = percent(successes, st.RunCount)
		s.Scripts = append(s.Scripts, st)
	}
	return s, rows.Err()
}

// ExportData writes the summary, recent runs and bottlenecks of the last
// days to path as JSON.
func (a *Analyzer) ExportData(path string, days int) error {
	summary, err := a.Summary(days)
	if err != nil {
		return err
	}
	runs, err := a.RecentRuns(days, "")
	if err != nil {
		return err
	}
	bottlenecks, err := a.Bottlenecks("", DefaultBottleneckThreshold)
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []RunSummary{}
	}

	data, err := json.MarshalIndent(map[string]any{
		"summary":     summary,
		"recent_runs": runs,
		"bottlenecks": bottlenecks,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
