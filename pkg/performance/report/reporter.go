// Package report is the read side of the performance store: run and step
// queries, text and JSON reports, and cross-run analysis.
package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entrhq/rpacore/pkg/performance"
)

// Report formats.
const (
	FormatSummary  = "summary"
	FormatText     = "text"
	FormatDetailed = "detailed"
	FormatJSON     = "json"
)

// NoRunsMessage is returned by text reports on an empty store.
const NoRunsMessage = "No automation runs found in database."

// ErrUnknownFormat is returned by Report for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

const runColumns = `
	id, session_id, script_name, started_at, completed_at,
	total_duration, status, total_steps, failed_steps,
	environment, browser_type, headless, viewport_size, user_agent, tags, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*RunSummary, error) {
	var (
		run                                   RunSummary
		sessionID, env, browser, viewport, ua sql.NullString
		tags, notes                           sql.NullString
		started, completed                    sql.NullString
		duration                              sql.NullFloat64
		total, failed                         sql.NullInt64
		headless                              sql.NullBool
	)
	err := s.Scan(&run.RunID, &sessionID, &run.ScriptName, &started, &completed,
		&duration, &run.Status, &total, &failed,
		&env, &browser, &headless, &viewport, &ua, &tags, &notes)
	if err != nil {
		return nil, err
	}

	run.SessionID = sessionID.String
	run.StartedAt = performance.ParseTime(started)
	if t := performance.ParseTime(completed); !t.IsZero() {
		run.CompletedAt = &t
	}
	run.TotalDuration = duration.Float64
	run.TotalSteps = int(total.Int64)
	run.FailedSteps = int(failed.Int64)
	run.SuccessRate = SuccessRate(run.TotalSteps, run.FailedSteps)
	run.Environment = env.String
	run.BrowserType = browser.String
	if headless.Valid {
		h := headless.Bool
		run.Headless = &h
	}
	run.ViewportSize = viewport.String
	run.UserAgent = ua.String
	run.Tags = parseTags(tags.String)
	run.Notes = notes.String
	return &run, nil
}

func parseTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err == nil {
		return tags
	}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithTracker lets the reporter tell a live running row from an orphaned one.
func WithTracker(t *performance.Tracker) Option {
	return func(r *Reporter) { r.tracker = t }
}

// Reporter renders reports for runs in the performance store.
type Reporter struct {
	db      *sql.DB
	owned   bool
	tracker *performance.Tracker
}

// NewReporter reads from an open database.
func NewReporter(db *sql.DB, opts ...Option) *Reporter {
	r := &Reporter{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OpenReporter opens the database at path. Close releases it.
func OpenReporter(path string, opts ...Option) (*Reporter, error) {
	db, err := performance.OpenDB(path)
	if err != nil {
		return nil, err
	}
	r := NewReporter(db, opts...)
	r.owned = true
	return r, nil
}

// Close closes the database when the reporter opened it.
func (r *Reporter) Close() error {
	if r.owned {
		return r.db.Close()
	}
	return nil
}

// LatestRun returns the most recent run, or nil on an empty store.
func (r *Reporter) LatestRun() (*RunSummary, error) {
	row := r.db.QueryRow(`SELECT ` + runColumns + ` FROM automation_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	return run, nil
}

// RunByID returns a run by its id, or nil when it does not exist.
func (r *Reporter) RunByID(runID string) (*RunSummary, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM automation_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first.
func (r *Reporter) RecentRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT `+runColumns+` FROM automation_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	return collectRuns(rows)
}

func collectRuns(rows *sql.Rows) ([]RunSummary, error) {
	defer rows.Close()
	var runs []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RunSteps returns a run's steps in stored order.
func (r *Reporter) RunSteps(runID string) ([]StepSummary, error) {
	return querySteps(r.db, runID)
}

func querySteps(db *sql.DB, runID string) ([]StepSummary, error) {
	rows, err := db.Query(`
		SELECT id, step_name, step_type, step_order, parent_step_id, started_at, completed_at,
		       duration, status, error_message, page_url, page_title, element_selector,
		       screenshot_path, metadata
		FROM step_metrics WHERE run_id = ? ORDER BY step_order, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepSummary
	for rows.Next() {
		var (
			s                                              StepSummary
			order, parent                                  sql.NullInt64
			started, completed                             sql.NullString
			duration                                       sql.NullFloat64
			errMsg, url, title, selector, screenshot, meta sql.NullString
		)
		if err := rows.Scan(&s.StepID, &s.Name, &s.Type, &order, &parent, &started, &completed,
			&duration, &s.Status, &errMsg, &url, &title, &selector, &screenshot, &meta); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		s.Order = int(order.Int64)
		if parent.Valid {
			p := parent.Int64
			s.ParentStepID = &p
		}
		s.StartedAt = performance.ParseTime(started)
		if t := performance.ParseTime(completed); !t.IsZero() {
			s.CompletedAt = &t
		}
		s.Duration = duration.Float64
		s.ErrorMessage = errMsg.String
		s.PageURL = url.String
		s.PageTitle = title.String
		s.Selector = selector.String
		s.ScreenshotPath = screenshot.String
		s.Metadata = meta.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// BrowserMetrics returns a run's browser samples in recording order.
func (r *Reporter) BrowserMetrics(runID string) ([]BrowserMetric, error) {
	return queryBrowserMetrics(r.db, runID)
}

func queryBrowserMetrics(db *sql.DB, runID string) ([]BrowserMetric, error) {
	rows, err := db.Query(`
		SELECT id, recorded_at, page_load_time, dom_content_loaded_time, first_paint_time,
		       COALESCE(page_size_kb, 0), COALESCE(network_requests, 0), COALESCE(network_failed_requests, 0),
		       COALESCE(total_transfer_size_kb, 0), COALESCE(memory_usage_mb, 0), COALESCE(cpu_usage_percent, 0),
		       page_url, viewport_size
		FROM browser_metrics WHERE run_id = ? ORDER BY recorded_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query browser metrics: %w", err)
	}
	defer rows.Close()

	var metrics []BrowserMetric
	for rows.Next() {
		var (
			m                 BrowserMetric
			recorded, url, vp sql.NullString
			load, dcl, paint  sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &recorded, &load, &dcl, &paint,
			&m.PageSizeKB, &m.NetworkRequests, &m.NetworkFailedRequests,
			&m.TotalTransferSizeKB, &m.MemoryUsageMB, &m.CPUUsagePercent, &url, &vp); err != nil {
			return nil, fmt.Errorf("scan browser metric: %w", err)
		}
		m.RecordedAt = performance.ParseTime(recorded)
		m.PageLoadTime = floatPtr(load)
		m.DOMContentLoadedTime = floatPtr(dcl)
		m.FirstPaintTime = floatPtr(paint)
		m.PageURL = url.String
		m.ViewportSize = vp.String
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// ActionMetrics returns a run's actions in execution order.
func (r *Reporter) ActionMetrics(runID string) ([]Action, error) {
	rows, err := r.db.Query(`
		SELECT id, step_id, action_type, target_element, action_value, started_at,
		       duration, success, COALESCE(retry_count, 0), error_details
		FROM action_metrics WHERE run_id = ? ORDER BY started_at, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var (
			a                            Action
			target, value, started, errs sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.StepID, &a.ActionType, &target, &value, &started,
			&a.Duration, &a.Success, &a.RetryCount, &errs); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.TargetElement = target.String
		a.ActionValue = value.String
		a.StartedAt = performance.ParseTime(started)
		a.ErrorDetails = errs.String
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// resolveRun returns the requested run, or the latest when runID is empty.
func (r *Reporter) resolveRun(runID string) (*RunSummary, error) {
	if runID == "" {
		return r.LatestRun()
	}
	return r.RunByID(runID)
}

// displayStatus upper-cases the status and flags running rows that no live
// session in this process owns.
func (r *Reporter) displayStatus(run *RunSummary) string {
	status := strings.ToUpper(run.Status)
	if run.Status != string(performance.RunRunning) || run.CompletedAt != nil {
		return status
	}
	if r.tracker != nil {
		if cur := r.tracker.CurrentSession(); cur != nil && cur.RunID == run.RunID {
			return status
		}
	}
	return status + " (orphaned)"
}

// Report renders the run in the given format. An empty runID means the
// latest run.
func (r *Reporter) Report(format, runID string) (string, error) {
	switch format {
	case FormatSummary, FormatText, "":
		return r.SummaryReport(runID)
	case FormatDetailed:
		return r.DetailedReport(runID)
	case FormatJSON:
		return r.JSONReport(runID)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// ExportReport writes a report to path, creating parent directories.
func (r *Reporter) ExportReport(path, format, runID string) error {
	content, err := r.Report(format, runID)
	if err != nil {
		return err
	}
	return WriteFile(path, content)
}

// WriteFile writes an already rendered report to path, creating parent
// directories.
func WriteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// JSONReport renders the run, its steps, browser samples and actions as JSON.
func (r *Reporter) JSONReport(runID string) (string, error) {
	run, err := r.resolveRun(runID)
	if err != nil {
		return "", err
	}
	if run == nil {
		msg := "No runs found"
		if runID != "" {
			msg = fmt.Sprintf("Run %s not found", runID)
		}
		return marshalIndent(map[string]string{"error": msg})
	}

	rep := RunReport{Run: run}
	if rep.Steps, err = r.RunSteps(run.RunID); err != nil {
		return "", err
	}
	if rep.BrowserMetrics, err = r.BrowserMetrics(run.RunID); err != nil {
		return "", err
	}
	if rep.Actions, err = r.ActionMetrics(run.RunID); err != nil {
		return "", err
	}
	if rep.Steps == nil {
		rep.Steps = []StepSummary{}
	}
	if rep.BrowserMetrics == nil {
		rep.BrowserMetrics = []BrowserMetric{}
	}
	if rep.Actions == nil {
		rep.Actions = []Action{}
	}
	return marshalIndent(rep)
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}
