package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/entrhq/rpacore/pkg/performance"
)

func newTracker(t *testing.T) *performance.Tracker {
	t.Helper()
	tr, err := performance.NewTracker(filepath.Join(t.TempDir(), "performance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

type runFixture struct {
	id          string
	script      string
	startedAt   time.Time
	duration    float64
	status      string
	totalSteps  int
	failedSteps int
	open        bool
}

func insertRun(t *testing.T, db *sql.DB, r runFixture) {
	t.Helper()
	var completed any
	if !r.open {
		completed = performance.FormatTime(r.startedAt.Add(time.Duration(r.duration * float64(time.Second))))
	}
	_, err := db.Exec(`
		INSERT INTO automation_runs (id, session_id, script_name, started_at, completed_at,
			total_duration, status, total_steps, failed_steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.id, "session-"+r.id, r.script, performance.FormatTime(r.startedAt), completed,
		r.duration, r.status, r.totalSteps, r.failedSteps)
	require.NoError(t, err)
}

func insertStep(t *testing.T, db *sql.DB, runID, name, typ, status string, order int, duration float64) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO step_metrics (run_id, session_id, step_name, step_type, step_order, started_at, duration, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, "session-"+runID, name, typ, order, performance.FormatTime(time.Now()), duration, status)
	require.NoError(t, err)
}

// runScenario records three steps, the last failing with "boom".
func runScenario(t *testing.T, tr *performance.Tracker) {
	t.Helper()
	_, err := tr.StartSession(performance.RunMetadata{ScriptName: "demo", Environment: "qa", BrowserType: "chromium", Tags: []string{"smoke"}})
	require.NoError(t, err)

	_, err = tr.Step("first", performance.StepNavigation).Start().End(nil)
	require.NoError(t, err)

	base := time.Now()
	second := tr.Step("second", performance.StepAction).Start()
	second.TrackAction(performance.Action{Type: "click", Target: "#next", StartedAt: base, Duration: 200 * time.Millisecond, Success: true})
	second.TrackAction(performance.Action{Type: "type", Target: "#name", Value: "Jane", StartedAt: base.Add(time.Second), Duration: 100 * time.Millisecond, RetryCount: 2, Error: "detached"})
	second.TrackAction(performance.Action{Type: "click", Target: "#save", StartedAt: base.Add(2 * time.Second), Duration: 400 * time.Millisecond})
	_, err = second.End(nil)
	require.NoError(t, err)

	_, err = tr.Step("third", performance.StepVerification).Start().End(errors.New("boom"))
	require.NoError(t, err)

	require.NoError(t, tr.RecordBrowserMetric(performance.BrowserMetric{PageLoadTime: time.Second, PageURL: "https://example.com/a"}))
	require.NoError(t, tr.RecordBrowserMetric(performance.BrowserMetric{PageLoadTime: 3 * time.Second, PageURL: "https://example.com/b"}))
	require.NoError(t, tr.RecordBrowserMetric(performance.BrowserMetric{MemoryUsageMB: 120}))

	require.NoError(t, tr.EndSession(performance.RunFailed))
}

func TestSummaryReport_EmptyStore(t *testing.T) {
	tr := newTracker(t)
	r := NewReporter(tr.DB())

	text, err := r.SummaryReport("")
	require.NoError(t, err)
	assert.Equal(t, "No automation runs found in database.", text)

	detailed, err := r.DetailedReport("")
	require.NoError(t, err)
	assert.Equal(t, NoRunsMessage, detailed)

	js, err := r.JSONReport("")
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "No runs found"}`, js)

	latest, err := r.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSummaryReport_RunNotFound(t *testing.T) {
	r := NewReporter(newTracker(t).DB())

	text, err := r.SummaryReport("missing")
	require.NoError(t, err)
	assert.Equal(t, "Run missing not found.", text)

	js, err := r.JSONReport("missing")
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "Run missing not found"}`, js)

	run, err := r.RunByID("missing")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestSummaryReport_Scenario(t *testing.T) {
	tr := newTracker(t)
	runScenario(t, tr)
	r := NewReporter(tr.DB())

	text, err := r.SummaryReport("")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, strings.Repeat("=", 80)+"\nAUTOMATION RUN SUMMARY\n"))
	assert.Contains(t, text, "Script Name:      demo")
	assert.Contains(t, text, "Status:           FAILED")
	assert.Contains(t, text, "Environment:      qa")
	assert.Contains(t, text, "Browser:          chromium")
	assert.Contains(t, text, "Total Steps:      3")
	assert.Contains(t, text, "Failed Steps:     1")
	assert.Contains(t, text, "Success Rate:     66.7%")
	assert.Contains(t, text, "Tags:             smoke")
	assert.Contains(t, text, "boom")
	assert.Contains(t, text, "    Error: boom")

	first := strings.Index(text, "✓ [1] first")
	second := strings.Index(text, "✓ [2] second")
	third := strings.Index(text, "✗ [3] third")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	require.NotEqual(t, -1, third)
	assert.Less(t, first, second)
	assert.Less(t, second, third)

	assert.Contains(t, text, "BROWSER PERFORMANCE METRICS")
	assert.Contains(t, text, "Total Page Loads:     2")
	assert.Contains(t, text, "Avg Page Load Time:   2.00s")
	assert.Contains(t, text, "Min Page Load Time:   1.00s")
	assert.Contains(t, text, "Max Page Load Time:   3.00s")

	assert.Contains(t, text, "ACTION METRICS")
	assert.Contains(t, text, "CLICK:\n  Count: 2 | Avg Duration: 0.300s | Success Rate: 50.0%")
	assert.Contains(t, text, "TYPE:\n  Count: 1 | Avg Duration: 0.100s | Success Rate: 0.0%")
	assert.Less(t, strings.Index(text, "CLICK:"), strings.Index(text, "TYPE:"), "first-seen order")
	assert.True(t, strings.HasSuffix(text, strings.Repeat("=", 80)))
}

func TestDetailedReport(t *testing.T) {
	tr := newTracker(t)
	runScenario(t, tr)
	r := NewReporter(tr.DB())

	summary, err := r.SummaryReport("")
	require.NoError(t, err)
	detailed, err := r.DetailedReport("")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(detailed, summary))
	assert.Contains(t, detailed, "DETAILED ACTION LOG")
	assert.Contains(t, detailed, "[1] CLICK\n    Target: #next\n    Duration: 0.200s\n    Success: Yes")
	assert.Contains(t, detailed, "[2] TYPE\n    Target: #name\n    Duration: 0.100s\n    Success: No\n    Value: Jane\n    Retries: 2\n    Error: detached")
	assert.Contains(t, detailed, "[3] CLICK")
}

func TestJSONReport(t *testing.T) {
	tr := newTracker(t)
	runScenario(t, tr)
	r := NewReporter(tr.DB())

	js, err := r.JSONReport("")
	require.NoError(t, err)

	var rep struct {
		Run struct {
			RunID       string  `json:"run_id"`
			ScriptName  string  `json:"script_name"`
			Status      string  `json:"status"`
			StartedAt   string  `json:"started_at"`
			CompletedAt *string `json:"completed_at"`
			SuccessRate float64 `json:"success_rate"`
		} `json:"run"`
		Steps          []map[string]any `json:"steps"`
		BrowserMetrics []map[string]any `json:"browser_metrics"`
		Actions        []map[string]any `json:"actions"`
	}
	require.NoError(t, json.Unmarshal([]byte(js), &rep))

	assert.Equal(t, "demo", rep.Run.ScriptName)
	assert.Equal(t, "failed", rep.Run.Status)
	assert.InDelta(t, 66.67, rep.Run.SuccessRate, 0.01)
	_, err = time.Parse(time.RFC3339Nano, rep.Run.StartedAt)
	assert.NoError(t, err, "timestamps are ISO-8601")
	require.NotNil(t, rep.Run.CompletedAt)
	assert.Len(t, rep.Steps, 3)
	assert.Len(t, rep.BrowserMetrics, 3)
	assert.Len(t, rep.Actions, 3)

	byID, err := r.JSONReport(rep.Run.RunID)
	require.NoError(t, err)
	assert.JSONEq(t, js, byID)
}

func TestSuccessRate(t *testing.T) {
	assert.Zero(t, SuccessRate(0, 0))
	assert.Equal(t, 75.0, SuccessRate(4, 1))
	assert.Equal(t, 100.0, SuccessRate(3, 0))

	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.IntRange(0, 10000).Draw(rt, "total")
		failed := rapid.IntRange(0, total).Draw(rt, "failed")
		got := SuccessRate(total, failed)
		if total == 0 {
			if got != 0 {
				rt.Fatalf("empty run has rate %v", got)
			}
			return
		}
		want := float64(total-failed) / float64(total) * 100
		if got != want || got < 0 || got > 100 {
			rt.Fatalf("SuccessRate(%d, %d) = %v, want %v", total, failed, got, want)
		}
	})
}

func TestRunByID_DerivedSuccessRate(t *testing.T) {
	tr := newTracker(t)
	now := time.Now()
	insertRun(t, tr.DB(), runFixture{id: "r-4-1", script: "demo", startedAt: now, duration: 10, status: "success", totalSteps: 4, failedSteps: 1})
	insertRun(t, tr.DB(), runFixture{id: "r-0-0", script: "demo", startedAt: now.Add(-time.Minute), duration: 1, status: "success"})

	r := NewReporter(tr.DB())

	run, err := r.RunByID("r-4-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, 75.0, run.SuccessRate)

	empty, err := r.RunByID("r-0-0")
	require.NoError(t, err)
	assert.Zero(t, empty.SuccessRate)

	latest, err := r.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "r-4-1", latest.RunID)

	recent, err := r.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "r-4-1", recent[0].RunID)
}

func TestRunSteps_StoredOrder(t *testing.T) {
	tr := newTracker(t)
	insertRun(t, tr.DB(), runFixture{id: "r1", script: "demo", startedAt: time.Now(), status: "success"})
	insertStep(t, tr.DB(), "r1", "third", "action", "success", 3, 1)
	insertStep(t, tr.DB(), "r1", "first", "action", "success", 1, 1)
	insertStep(t, tr.DB(), "r1", "second", "action", "failed", 2, 1)

	steps, err := NewReporter(tr.DB()).RunSteps("r1")
	require.NoError(t, err)

	var names []string
	for _, s := range steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"first", "second", "third"}, names)
}

func TestSummaryReport_OrphanedRun(t *testing.T) {
	tr := newTracker(t)
	insertRun(t, tr.DB(), runFixture{id: "stale", script: "demo", startedAt: time.Now(), status: "running", open: true})

	text, err := NewReporter(tr.DB()).SummaryReport("stale")
	require.NoError(t, err)
	assert.Contains(t, text, "Status:           RUNNING (orphaned)")
	assert.Contains(t, text, "Completed:        N/A")
}

func TestSummaryReport_LiveRun(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.StartSession(performance.RunMetadata{ScriptName: "live"})
	require.NoError(t, err)

	text, err := NewReporter(tr.DB(), WithTracker(tr)).SummaryReport("")
	require.NoError(t, err)
	assert.Contains(t, text, "Status:           RUNNING\n")
	assert.NotContains(t, text, "orphaned")
}

func TestReport_Formats(t *testing.T) {
	tr := newTracker(t)
	runScenario(t, tr)
	r := NewReporter(tr.DB())

	for _, format := range []string{FormatSummary, FormatText, FormatDetailed, FormatJSON} {
		out, err := r.Report(format, "")
		require.NoError(t, err, format)
		assert.NotEmpty(t, out, format)
	}

	_, err := r.Report("xml", "")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExportReport(t *testing.T) {
	tr := newTracker(t)
	runScenario(t, tr)
	r := NewReporter(tr.DB())

	path := filepath.Join(t.TempDir(), "exports", "report.json")
	require.NoError(t, r.ExportReport(path, FormatJSON, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	assert.Error(t, r.ExportReport(path, "xml", ""))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "report.txt")
	require.NoError(t, WriteFile(path, "rendered once"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rendered once", string(data))
}

func TestOpenReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perf.db")
	tr, err := performance.NewTracker(path)
	require.NoError(t, err)
	runScenario(t, tr)
	require.NoError(t, tr.Close())

	r, err := OpenReporter(path)
	require.NoError(t, err)
	defer r.Close()

	run, err := r.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "demo", run.ScriptName)
	assert.Equal(t, []string{"smoke"}, run.Tags)
}

func TestParseTags(t *testing.T) {
	assert.Nil(t, parseTags(""))
	assert.Equal(t, []string{"a", "b"}, parseTags(`["a","b"]`))
	assert.Equal(t, []string{"a", "b"}, parseTags("a, b"))
}
