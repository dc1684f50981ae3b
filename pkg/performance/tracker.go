// Package performance records automation runs, their steps and fine-grained
// actions into a SQLite database.
//
// Tracking is opt-in and fail-open: every write is guarded by the current
// session slot, so instrumented code behaves as a plain pass-through when no
// session has been started.
package performance

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Tracker is the write side of the performance store. It holds a single
// current-session slot: starting a session while one is open replaces it
// (last write wins, runs never stack).
type Tracker struct {
	db   *sql.DB
	path string
	now  func() time.Time

	mu      sync.Mutex
	current *SessionInfo
}

// NewTracker opens (or creates) the database at dbPath and applies the schema.
func NewTracker(dbPath string) (*Tracker, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}

	return &Tracker{db: db, path: dbPath, now: time.Now}, nil
}

// OpenDB opens the SQLite database at path and ensures the schema exists.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// DB exposes the underlying database for the reporting layer.
func (t *Tracker) DB() *sql.DB { return t.db }

// Path returns the database file path.
func (t *Tracker) Path() string { return t.path }

// Close closes the database.
func (t *Tracker) Close() error {
	if t == nil {
		return nil
	}
	return t.db.Close()
}

// session returns the current slot, or nil when tracking is inactive. All
// write operations go through here, which also makes a nil tracker inert.
func (t *Tracker) session() *SessionInfo {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Active reports whether a session is open.
func (t *Tracker) Active() bool {
	return t.session() != nil
}

// CurrentSession returns a copy of the current session, or nil.
func (t *Tracker) CurrentSession() *SessionInfo {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	info := *t.current
	return &info
}

// StartSession inserts a running row and makes it the current session.
func (t *Tracker) StartSession(meta RunMetadata) (string, error) {
	if t == nil {
		return "", nil
	}
	if meta.ScriptName == "" {
		return "", fmt.Errorf("script name is required")
	}

	runID := uuid.New().String()
	sessionID := uuid.New().String()
	started := t.now()

	var headless any
	if meta.Headless != nil {
		headless = *meta.Headless
	}

	var tags any
	if len(meta.Tags) > 0 {
		data, err := json.Marshal(meta.Tags)
		if err != nil {
			return "", fmt.Errorf("failed to encode tags: %w", err)
		}
		tags = string(data)
	}

	_, err := t.db.Exec(`
		INSERT INTO automation_runs (
			id, session_id, script_name, started_at, status,
			environment, browser_type, headless, viewport_size,
			user_agent, tags, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, sessionID, meta.ScriptName, FormatTime(started), string(RunRunning),
		nullString(meta.Environment), nullString(meta.BrowserType), headless, nullString(meta.ViewportSize),
		nullString(meta.UserAgent), tags, nullString(meta.Notes), FormatTime(started),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	t.mu.Lock()
	t.current = &SessionInfo{
		RunID:     runID,
		SessionID: sessionID,
		StartedAt: started,
	}
	t.mu.Unlock()

	return sessionID, nil
}

// EndSession finalizes the current run row with its duration, aggregated
// step counts and status, then clears the slot. No-op without a session.
func (t *Tracker) EndSession(status RunStatus) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	cur := t.current
	t.current = nil
	t.mu.Unlock()

	if cur == nil {
		return nil
	}
	if status == "" {
		status = RunSuccess
	}

	completed := t.now()
	duration := completed.Sub(cur.StartedAt)
	if duration < 0 {
		duration = 0
	}

	var total, failed int
	err := t.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM step_metrics WHERE run_id = ?`, cur.RunID).Scan(&total, &failed)
	if err != nil {
		return fmt.Errorf("count steps: %w", err)
	}

	_, err = t.db.Exec(`
		UPDATE automation_runs
		SET completed_at = ?, total_duration = ?, status = ?, total_steps = ?, failed_steps = ?
		WHERE id = ?`,
		FormatTime(completed), Seconds(duration), string(status), total, failed, cur.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// TrackStep writes a step row and returns its id, or 0 without a session.
// step_order comes from the in-memory counter, never from timestamps.
func (t *Tracker) TrackStep(m StepMetrics) (int64, error) {
	if t == nil {
		return 0, nil
	}
	t.mu.Lock()
	cur := t.current
	if cur == nil {
		t.mu.Unlock()
		return 0, nil
	}
	cur.StepCounter++
	order := cur.StepCounter
	runID, sessionID := cur.RunID, cur.SessionID
	t.mu.Unlock()

	completed := m.CompletedAt
	if completed.IsZero() {
		completed = t.now()
	}
	started := m.StartedAt
	if started.IsZero() {
		started = completed.Add(-m.Duration)
	}
	duration := m.Duration
	if duration < 0 {
		duration = 0
	}
	if m.Type == "" {
		m.Type = StepAction
	}
	if m.Status == "" {
		m.Status = StepSuccess
	}

	var metadata any
	if len(m.Metadata) > 0 {
		data, err := json.Marshal(m.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to encode step metadata: %w", err)
		}
		metadata = string(data)
	}

	res, err := t.db.Exec(`
		INSERT INTO step_metrics (
			run_id, session_id, step_name, step_type, step_order, parent_step_id,
			started_at, completed_at, duration, status, error_message,
			page_url, page_title, element_selector, element_text,
			wait_time, response_time, screenshot_path, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, sessionID, m.Name, string(m.Type), order, nullInt(m.ParentStepID),
		FormatTime(started), FormatTime(completed), Seconds(duration), string(m.Status), nullString(m.ErrorMessage),
		nullString(m.PageURL), nullString(m.PageTitle), nullString(m.ElementSelector), nullString(m.ElementText),
		nullSeconds(m.WaitTime), nullSeconds(m.ResponseTime), nullString(m.ScreenshotPath), metadata,
	)
	if err != nil {
		return 0, fmt.Errorf("insert step: %w", err)
	}
	return res.LastInsertId()
}

// TrackAction writes an action row for stepID. No-op without a session.
func (t *Tracker) TrackAction(stepID int64, a Action) error {
	cur := t.session()
	if cur == nil {
		return nil
	}

	started := a.StartedAt
	if started.IsZero() {
		started = t.now().Add(-a.Duration)
	}

	_, err := t.db.Exec(`
		INSERT INTO action_metrics (
			step_id, run_id, action_type, target_element, action_value,
			started_at, duration, success, retry_count, error_details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stepID, cur.RunID, strings.ToLower(a.Type), a.Target, a.Value,
		FormatTime(started), Seconds(a.Duration), a.Success, a.RetryCount, a.Error,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// RecordBrowserMetric stores a page performance sample. No-op without a session.
func (t *Tracker) RecordBrowserMetric(m BrowserMetric) error {
	cur := t.session()
	if cur == nil {
		return nil
	}

	_, err := t.db.Exec(`
		INSERT INTO browser_metrics (
			run_id, session_id, recorded_at, page_load_time, dom_content_loaded_time,
			first_paint_time, page_size_kb, network_requests, network_failed_requests,
			total_transfer_size_kb, memory_usage_mb, cpu_usage_percent, page_url, viewport_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cur.RunID, cur.SessionID, FormatTime(t.now()), nullSeconds(m.PageLoadTime), nullSeconds(m.DOMContentLoadedTime),
		nullSeconds(m.FirstPaintTime), m.PageSizeKB, m.NetworkRequests, m.NetworkFailedRequests,
		m.TotalTransferSizeKB, m.MemoryUsageMB, m.CPUUsagePercent, nullString(m.PageURL), nullString(m.ViewportSize),
	)
	if err != nil {
		return fmt.Errorf("insert browser metric: %w", err)
	}
	return nil
}
