package performance

import (
	"database/sql"
	"time"
)

// TimeLayout is the storage format of every timestamp column. Local time in
// a sortable layout keeps DATE() grouping and string range filters correct.
const TimeLayout = "2006-01-02 15:04:05.000000"

const schema = `
CREATE TABLE IF NOT EXISTS automation_runs (
	id             TEXT PRIMARY KEY,
	session_id     TEXT UNIQUE,
	script_name    TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	completed_at   TEXT,
	total_duration REAL,
	status         TEXT NOT NULL DEFAULT 'running',
	total_steps    INTEGER DEFAULT 0,
	failed_steps   INTEGER DEFAULT 0,
	environment    TEXT,
	browser_type   TEXT,
	headless       BOOLEAN,
	viewport_size  TEXT,
	user_agent     TEXT,
	tags           TEXT,
	notes          TEXT,
	created_at     TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS step_metrics (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL,
	session_id       TEXT NOT NULL,
	step_name        TEXT NOT NULL,
	step_type        TEXT NOT NULL,
	step_order       INTEGER,
	parent_step_id   INTEGER,
	started_at       TEXT NOT NULL,
	completed_at     TEXT,
	duration         REAL,
	status           TEXT NOT NULL,
	error_message    TEXT,
	page_url         TEXT,
	page_title       TEXT,
	element_selector TEXT,
	element_text     TEXT,
	wait_time        REAL,
	response_time    REAL,
	screenshot_path  TEXT,
	metadata         TEXT,
	FOREIGN KEY (run_id) REFERENCES automation_runs(id),
	FOREIGN KEY (parent_step_id) REFERENCES step_metrics(id)
);

CREATE TABLE IF NOT EXISTS browser_metrics (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id                  TEXT NOT NULL,
	session_id              TEXT NOT NULL,
	recorded_at             TEXT DEFAULT CURRENT_TIMESTAMP,
	page_load_time          REAL,
	dom_content_loaded_time REAL,
	first_paint_time        REAL,
	page_size_kb            REAL,
	network_requests        INTEGER,
	network_failed_requests INTEGER,
	total_transfer_size_kb  REAL,
	memory_usage_mb         REAL,
	cpu_usage_percent       REAL,
	page_url                TEXT,
	viewport_size           TEXT,
	FOREIGN KEY (run_id) REFERENCES automation_runs(id)
);

CREATE TABLE IF NOT EXISTS action_metrics (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	step_id        INTEGER NOT NULL,
	run_id         TEXT NOT NULL,
	action_type    TEXT NOT NULL,
	target_element TEXT,
	action_value   TEXT,
	started_at     TEXT NOT NULL,
	duration       REAL NOT NULL,
	success        BOOLEAN NOT NULL,
	retry_count    INTEGER DEFAULT 0,
	error_details  TEXT,
	FOREIGN KEY (step_id) REFERENCES step_metrics(id),
	FOREIGN KEY (run_id) REFERENCES automation_runs(id)
);

CREATE INDEX IF NOT EXISTS idx_runs_script_date ON automation_runs(script_name, started_at);
CREATE INDEX IF NOT EXISTS idx_steps_run_order ON step_metrics(run_id, step_order);
CREATE INDEX IF NOT EXISTS idx_steps_duration ON step_metrics(duration);
CREATE INDEX IF NOT EXISTS idx_actions_type ON action_metrics(action_type);
`

// FormatTime renders t in the storage layout.
func FormatTime(t time.Time) string {
	return t.In(time.Local).Format(TimeLayout)
}

// ParseTime reads a stored timestamp. Empty or NULL values yield the zero time.
func ParseTime(v sql.NullString) time.Time {
	if !v.Valid || v.String == "" {
		return time.Time{}
	}
	for _, layout := range []string{TimeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, v.String, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Seconds converts a duration to the REAL seconds stored in the database.
func Seconds(d time.Duration) float64 {
	return d.Seconds()
}

// FromSeconds converts stored REAL seconds back to a duration.
func FromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func nullSeconds(d time.Duration) any {
	if d == 0 {
		return nil
	}
	return Seconds(d)
}
