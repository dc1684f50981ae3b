package report

import (
	"time"
)

// RunSummary is one automation_runs row with its derived success rate.
type RunSummary struct {
	RunID         string     `json:"run_id"`
	SessionID     string     `json:"session_id"`
	ScriptName    string     `json:"script_name"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	TotalDuration float64    `json:"total_duration"`
	Status        string     `json:"status"`
	TotalSteps    int        `json:"total_steps"`
	FailedSteps   int        `json:"failed_steps"`
	SuccessRate   float64    `json:"success_rate"`
	Environment   string     `json:"environment,omitempty"`
	BrowserType   string     `json:"browser_type,omitempty"`
	Headless      *bool      `json:"headless,omitempty"`
	ViewportSize  string     `json:"viewport_size,omitempty"`
	UserAgent     string     `json:"user_agent,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	Notes         string     `json:"notes,omitempty"`
}

// SuccessRate returns (total-failed)/total*100, or 0 for a run without steps.
func SuccessRate(total, failed int) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-failed) / float64(total) * 100
}

// StepSummary is one step_metrics row.
type StepSummary struct {
	StepID         int64      `json:"step_id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Order          int        `json:"order"`
	ParentStepID   *int64     `json:"parent_step_id,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Duration       float64    `json:"duration"`
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	PageURL        string     `json:"page_url,omitempty"`
	PageTitle      string     `json:"page_title,omitempty"`
	Selector       string     `json:"element_selector,omitempty"`
	ScreenshotPath string     `json:"screenshot_path,omitempty"`
	Metadata       string     `json:"metadata,omitempty"`
}

// BrowserMetric is one browser_metrics row. Timing columns are seconds and
// nil when the sample did not include them.
type BrowserMetric struct {
	ID                    int64     `json:"id"`
	RecordedAt            time.Time `json:"recorded_at"`
	PageLoadTime          *float64  `json:"page_load_time"`
	DOMContentLoadedTime  *float64  `json:"dom_content_loaded_time"`
	FirstPaintTime        *float64  `json:"first_paint_time"`
	PageSizeKB            float64   `json:"page_size_kb"`
	NetworkRequests       int       `json:"network_requests"`
	NetworkFailedRequests int       `json:"network_failed_requests"`
	TotalTransferSizeKB   float64   `json:"total_transfer_size_kb"`
	MemoryUsageMB         float64   `json:"memory_usage_mb"`
	CPUUsagePercent       float64   `json:"cpu_usage_percent"`
	PageURL               string    `json:"page_url,omitempty"`
	ViewportSize          string    `json:"viewport_size,omitempty"`
}

// Action is one action_metrics row.
type Action struct {
	ID            int64     `json:"id"`
	StepID        int64     `json:"step_id"`
	ActionType    string    `json:"action_type"`
	TargetElement string    `json:"target_element"`
	ActionValue   string    `json:"action_value,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	Duration      float64   `json:"duration"`
	Success       bool      `json:"success"`
	RetryCount    int       `json:"retry_count"`
	ErrorDetails  string    `json:"error_details,omitempty"`
}

// RunReport is the machine-readable report of one run.
type RunReport struct {
	Run            *RunSummary     `json:"run"`
	Steps          []StepSummary   `json:"steps"`
	BrowserMetrics []BrowserMetric `json:"browser_metrics"`
	Actions        []Action        `json:"actions"`
}

// RunDetails groups a run with its steps and browser samples.
type RunDetails struct {
	Run            *RunSummary     `json:"run_info"`
	Steps          []StepSummary   `json:"steps"`
	BrowserMetrics []BrowserMetric `json:"browser_metrics"`
}

// DailyTrend aggregates a script's runs of one day.
type DailyTrend struct {
	Date        string  `json:"date"`
	AvgDuration float64 `json:"avg_duration"`
	MinDuration float64 `json:"min_duration"`
	MaxDuration float64 `json:"max_duration"`
	RunCount    int     `json:"run_count"`
	SuccessRate float64 `json:"success_rate"`
}

// StepTrend aggregates one step name across a script's runs.
type StepTrend struct {
	StepName       string  `json:"step_name"`
	AvgDuration    float64 `json:"avg_duration"`
	MaxDuration    float64 `json:"max_duration"`
	ExecutionCount int     `json:"execution_count"`
	SuccessRate    float64 `json:"success_rate"`
}

// Trends is the trend analysis of one script.
type Trends struct {
	ScriptName     string       `json:"script_name"`
	AnalysisPeriod string       `json:"analysis_period"`
	DailyTrends    []DailyTrend `json:"daily_trends"`
	StepAnalysis   []StepTrend  `json:"step_analysis"`
}

// Bottleneck is a slow step, grouped by script, name and type.
type Bottleneck struct {
	ScriptName   string  `json:"script_name"`
	StepName     string  `json:"step_name"`
	StepType     string  `json:"step_type"`
	AvgDuration  float64 `json:"avg_duration"`
	MaxDuration  float64 `json:"max_duration"`
	Occurrences  int     `json:"occurrences"`
	FailureCount int     `json:"failure_count"`
	FailureRate  float64 `json:"failure_rate"`
}

// OverallStats summarizes all runs in a window.
type OverallStats struct {
	TotalRuns      int     `json:"total_runs"`
	SuccessfulRuns int     `json:"successful_runs"`
	SuccessRate    float64 `json:"success_rate"`
	AvgDuration    float64 `json:"avg_duration"`
	TotalSteps     int     `json:"total_steps"`
	UniqueScripts  int     `json:"unique_scripts"`
}

// ScriptStats summarizes one script's runs in a window.
type ScriptStats struct {
	ScriptName  string  `json:"script_name"`
	RunCount    int     `json:"run_count"`
	AvgDuration float64 `json:"avg_duration"`
	SuccessRate float64 `json:"success_rate"`
}

// Summary is the cross-run summary of a window.
type Summary struct {
	ReportPeriod string        `json:"report_period"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Overall      OverallStats  `json:"overall_statistics"`
	Scripts      []ScriptStats `json:"script_performance"`
}
