package performance

import (
	"time"
)

// StepType classifies a step.
type StepType string

const (
	StepAction       StepType = "action"
	StepVerification StepType = "verification"
	StepNavigation   StepType = "navigation"
	StepWait         StepType = "wait"
)

// StepStatus is the outcome of a step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepTimeout StepStatus = "timeout"
	StepSkipped StepStatus = "skipped"
)

// RunStatus is the state of a run row.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// RunMetadata describes a run. Only ScriptName is required.
type RunMetadata struct {
	ScriptName   string
	Environment  string
	BrowserType  string
	Headless     *bool
	ViewportSize string
	UserAgent    string
	Tags         []string
	Notes        string
}

// StepMetrics is a fully populated step record.
type StepMetrics struct {
	Name         string
	Type         StepType
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	Status       StepStatus
	ErrorMessage string
	ParentStepID int64

	PageURL         string
	PageTitle       string
	ElementSelector string
	ElementText     string
	WaitTime        time.Duration
	ResponseTime    time.Duration
	ScreenshotPath  string
	Metadata        map[string]any
}

// Action is one fine-grained operation inside a step.
type Action struct {
	Type       string
	Target     string
	Value      string
	StartedAt  time.Time
	Duration   time.Duration
	Success    bool
	RetryCount int
	Error      string
}

// BrowserMetric is a performance sample for a page in the current run.
type BrowserMetric struct {
	PageLoadTime          time.Duration
	DOMContentLoadedTime  time.Duration
	FirstPaintTime        time.Duration
	PageSizeKB            float64
	NetworkRequests       int
	NetworkFailedRequests int
	TotalTransferSizeKB   float64
	MemoryUsageMB         float64
	CPUUsagePercent       float64
	PageURL               string
	ViewportSize          string
}

// SessionInfo is a snapshot of the current session slot.
type SessionInfo struct {
	RunID       string
	SessionID   string
	StartedAt   time.Time
	StepCounter int
}
