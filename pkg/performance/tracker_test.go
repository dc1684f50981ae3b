package performance

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	tr, err := NewTracker(filepath.Join(t.TempDir(), "data", "performance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })

	clock := &fakeClock{now: time.Date(2024, 5, 6, 10, 0, 0, 0, time.Local)}
	tr.now = clock.Now
	return tr, clock
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

type runRow struct {
	status      string
	totalSteps  int
	failedSteps int
	duration    sql.NullFloat64
	completedAt sql.NullString
	headless    sql.NullBool
	tags        sql.NullString
}

func loadRun(t *testing.T, db *sql.DB, sessionID string) runRow {
	t.Helper()
	var r runRow
	err := db.QueryRow(`
		SELECT status, total_steps, failed_steps, total_duration, completed_at, headless, tags
		FROM automation_runs WHERE session_id = ?`, sessionID).
		Scan(&r.status, &r.totalSteps, &r.failedSteps, &r.duration, &r.completedAt, &r.headless, &r.tags)
	require.NoError(t, err)
	return r
}

func TestNewTracker_SchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "perf.db")

	first, err := NewTracker(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewTracker(path)
	require.NoError(t, err)
	defer second.Close()

	for _, table := range []string{"automation_runs", "step_metrics", "browser_metrics", "action_metrics"} {
		assert.Equal(t, 0, countRows(t, second.DB(), table))
	}
	assert.Equal(t, path, second.Path())
}

func TestTracker_FailOpenWithoutSession(t *testing.T) {
	tr, _ := newTestTracker(t)

	assert.False(t, tr.Active())
	assert.Nil(t, tr.CurrentSession())

	id, err := tr.TrackStep(StepMetrics{Name: "orphan", Duration: time.Second})
	require.NoError(t, err)
	assert.Zero(t, id)

	require.NoError(t, tr.TrackAction(1, Action{Type: "click", Target: "#btn", Success: true}))
	require.NoError(t, tr.RecordBrowserMetric(BrowserMetric{PageLoadTime: time.Second}))
	require.NoError(t, tr.EndSession(RunSuccess))

	for _, table := range []string{"automation_runs", "step_metrics", "browser_metrics", "action_metrics"} {
		assert.Equal(t, 0, countRows(t, tr.DB(), table), table)
	}
}

func TestTracker_WritesOneRowPerCallWithSession(t *testing.T) {
	tr, _ := newTestTracker(t)

	_, err := tr.StartSession(RunMetadata{ScriptName: "demo"})
	require.NoError(t, err)

	stepID, err := tr.TrackStep(StepMetrics{Name: "login", Type: StepAction})
	require.NoError(t, err)
	assert.NotZero(t, stepID)

	require.NoError(t, tr.TrackAction(stepID, Action{Type: "CLICK", Target: "#login", Success: true}))
	require.NoError(t, tr.RecordBrowserMetric(BrowserMetric{PageLoadTime: 1500 * time.Millisecond, PageURL: "https://example.com"}))

	assert.Equal(t, 1, countRows(t, tr.DB(), "automation_runs"))
	assert.Equal(t, 1, countRows(t, tr.DB(), "step_metrics"))
	assert.Equal(t, 1, countRows(t, tr.DB(), "action_metrics"))
	assert.Equal(t, 1, countRows(t, tr.DB(), "browser_metrics"))

	var actionType string
	require.NoError(t, tr.DB().QueryRow("SELECT action_type FROM action_metrics").Scan(&actionType))
	assert.Equal(t, "click", actionType)
}

func TestTracker_StartSession(t *testing.T) {
	tr, _ := newTestTracker(t)
	headless := true

	sessionID, err := tr.StartSession(RunMetadata{
		ScriptName:   "create_application",
		Environment:  "qa",
		BrowserType:  "chromium",
		Headless:     &headless,
		ViewportSize: "1920x1080",
		Tags:         []string{"smoke", "nightly"},
	})
	require.NoError(t, err)

	cur := tr.CurrentSession()
	require.NotNil(t, cur)
	assert.Equal(t, sessionID, cur.SessionID)
	assert.NotEqual(t, cur.RunID, cur.SessionID)
	assert.Zero(t, cur.StepCounter)

	row := loadRun(t, tr.DB(), sessionID)
	assert.Equal(t, "running", row.status)
	assert.True(t, row.headless.Valid && row.headless.Bool)
	assert.Equal(t, `["smoke","nightly"]`, row.tags.String)
	assert.False(t, row.completedAt.Valid)

	_, err = tr.StartSession(RunMetadata{})
	assert.Error(t, err, "script name is required")
}

func TestTracker_CurrentSessionIsACopy(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, err := tr.StartSession(RunMetadata{ScriptName: "demo"})
	require.NoError(t, err)

	cur := tr.CurrentSession()
	cur.StepCounter = 99

	_, err = tr.TrackStep(StepMetrics{Name: "first"})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.CurrentSession().StepCounter)
}

func TestTracker_SessionAccounting(t *testing.T) {
	tr, clock := newTestTracker(t)

	sessionID, err := tr.StartSession(RunMetadata{ScriptName: "demo"})
	require.NoError(t, err)

	statuses := []StepStatus{StepSuccess, StepFailed, StepSuccess, StepFailed, StepSuccess}
	for i, st := range statuses {
		_, err := tr.TrackStep(StepMetrics{Name: "step", Status: st, Duration: time.Duration(i) * time.Second})
		require.NoError(t, err)
	}

	clock.Advance(42 * time.Second)
	// Session status is independent of step outcomes
	require.NoError(t, tr.EndSession(RunSuccess))

	row := loadRun(t, tr.DB(), sessionID)
	assert.Equal(t, "success", row.status)
	assert.Equal(t, 5, row.totalSteps)
	assert.Equal(t, 2, row.failedSteps)
	assert.InDelta(t, 42.0, row.duration.Float64, 0.001)
	assert.True(t, row.completedAt.Valid)
	assert.False(t, tr.Active())
}

func TestTracker_EndSessionWithoutSteps(t *testing.T) {
	tr, _ := newTestTracker(t)

	sessionID, err := tr.StartSession(RunMetadata{ScriptName: "empty"})
	require.NoError(t, err)
	require.NoError(t, tr.EndSession(RunFailed))

	row := loadRun(t, tr.DB(), sessionID)
	assert.Equal(t, "failed", row.status)
	assert.Zero(t, row.totalSteps)
	assert.Zero(t, row.failedSteps)
}

func TestTracker_StartSessionReplacesCurrent(t *testing.T) {
	tr, _ := newTestTracker(t)

	first, err := tr.StartSession(RunMetadata{ScriptName: "first"})
	require.NoError(t, err)
	second, err := tr.StartSession(RunMetadata{ScriptName: "second"})
	require.NoError(t, err)

	assert.Equal(t, second, tr.CurrentSession().SessionID)

	require.NoError(t, tr.EndSession(RunSuccess))
	assert.False(t, tr.Active(), "sessions do not stack")

	assert.Equal(t, "running", loadRun(t, tr.DB(), first).status, "replaced session stays orphaned")
	assert.Equal(t, "success", loadRun(t, tr.DB(), second).status)
}

func TestTracker_StepOrderProperty(t *testing.T) {
	tr, _ := newTestTracker(t)

	rapid.Check(t, func(rt *rapid.T) {
		sessionID, err := tr.StartSession(RunMetadata{ScriptName: "ordering"})
		if err != nil {
			rt.Fatalf("start: %v", err)
		}
		n := rapid.IntRange(1, 25).Draw(rt, "steps")
		// The clock never moves, so every step shares one timestamp
		for i := 0; i < n; i++ {
			if _, err := tr.TrackStep(StepMetrics{Name: "same"}); err != nil {
				rt.Fatalf("track: %v", err)
			}
		}

		rows, err := tr.DB().Query(`SELECT step_order FROM step_metrics WHERE session_id = ? ORDER BY id`, sessionID)
		if err != nil {
			rt.Fatalf("query: %v", err)
		}
		var orders []int
		for rows.Next() {
			var o int
			if err := rows.Scan(&o); err != nil {
				rt.Fatalf("scan: %v", err)
			}
			orders = append(orders, o)
		}
		rows.Close()

		if len(orders) != n {
			rt.Fatalf("got %d rows, want %d", len(orders), n)
		}
		for i, o := range orders {
			if o != i+1 {
				rt.Fatalf("step %d has order %d", i, o)
			}
		}
		if err := tr.EndSession(RunSuccess); err != nil {
			rt.Fatalf("end: %v", err)
		}
	})
}

func TestTracker_StepRowContent(t *testing.T) {
	tr, _ := newTestTracker(t)
	_, err := tr.StartSession(RunMetadata{ScriptName: "demo"})
	require.NoError(t, err)

	id, err := tr.TrackStep(StepMetrics{
		Name:            "Submit",
		Type:            StepVerification,
		Status:          StepFailed,
		ErrorMessage:    "boom",
		Duration:        -time.Second,
		PageURL:         "https://example.com/form",
		ElementSelector: "#submit",
		ScreenshotPath:  "001_submit.png",
		Metadata:        map[string]any{"attempt": 2},
	})
	require.NoError(t, err)

	var (
		name, typ, status, errMsg, url, selector, shot, meta string
		duration                                             float64
	)
	err = tr.DB().QueryRow(`
		SELECT step_name, step_type, status, error_message, page_url, element_selector,
		       screenshot_path, metadata, duration
		FROM step_metrics WHERE id = ?`, id).
		Scan(&name, &typ, &status, &errMsg, &url, &selector, &shot, &meta, &duration)
	require.NoError(t, err)

	assert.Equal(t, "Submit", name)
	assert.Equal(t, "verification", typ)
	assert.Equal(t, "failed", status)
	assert.Equal(t, "boom", errMsg)
	assert.Equal(t, "https://example.com/form", url)
	assert.Equal(t, "#submit", selector)
	assert.Equal(t, "001_submit.png", shot)
	assert.JSONEq(t, `{"attempt":2}`, meta)
	assert.Zero(t, duration, "negative durations are clamped")
}

func TestRunSession(t *testing.T) {
	tr, _ := newTestTracker(t)

	t.Run("error marks run failed and is returned", func(t *testing.T) {
		boom := errors.New("boom")
		var sessionID string
		err := tr.RunSession(RunMetadata{ScriptName: "demo"}, func(s *Session) error {
			sessionID = s.ID()
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "failed", loadRun(t, tr.DB(), sessionID).status)
	})

	t.Run("panic ends session and is re-raised", func(t *testing.T) {
		var sessionID string
		assert.PanicsWithValue(t, "kaboom", func() {
			_ = tr.RunSession(RunMetadata{ScriptName: "demo"}, func(s *Session) error {
				sessionID = s.ID()
				panic("kaboom")
			})
		})
		assert.Equal(t, "failed", loadRun(t, tr.DB(), sessionID).status)
		assert.False(t, tr.Active())
	})

	t.Run("success", func(t *testing.T) {
		var sessionID string
		err := tr.RunSession(RunMetadata{ScriptName: "demo"}, func(s *Session) error {
			sessionID = s.ID()
			return s.Step("only", StepAction).Run(func(*Step) error { return nil })
		})
		require.NoError(t, err)
		row := loadRun(t, tr.DB(), sessionID)
		assert.Equal(t, "success", row.status)
		assert.Equal(t, 1, row.totalSteps)
	})
}

func TestSession_EndIsIdempotent(t *testing.T) {
	tr, _ := newTestTracker(t)
	s := tr.NewSession(RunMetadata{ScriptName: "demo"})

	assert.ErrorIs(t, s.End(nil), ErrNoSession)

	require.NoError(t, s.Start())
	require.NoError(t, s.End(errors.New("failed")))
	require.NoError(t, s.End(nil))

	assert.Equal(t, "failed", loadRun(t, tr.DB(), s.ID()).status)
}

func TestTracker_NilIsInert(t *testing.T) {
	var tr *Tracker

	assert.False(t, tr.Active())
	assert.Nil(t, tr.CurrentSession())
	assert.NoError(t, tr.RecordBrowserMetric(BrowserMetric{PageLoadTime: time.Second}))
	assert.NoError(t, tr.TrackAction(1, Action{Type: "click"}))

	assert.NotPanics(t, func() {
		id, err := tr.StartSession(RunMetadata{ScriptName: "demo"})
		assert.NoError(t, err)
		assert.Empty(t, id)

		stepID, err := tr.TrackStep(StepMetrics{Name: "Login"})
		assert.NoError(t, err)
		assert.Zero(t, stepID)

		assert.NoError(t, tr.EndSession(RunSuccess))
		assert.NoError(t, tr.Close())
	})
}
