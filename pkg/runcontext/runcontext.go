// Package runcontext owns the on-disk artifact folder of a single automation
// run: its log file, screenshots, traces, videos, exports and the run_info.json
// metadata record.
package runcontext

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Run status values written to run_info.json.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	// DefaultBaseDir is used when Initialize is given an empty base directory.
	DefaultBaseDir = "artifacts"

	logFileName  = "run.log"
	infoFileName = "run_info.json"

	dateLayout = "2006-01-02"
	// Seconds are included so two runs started in the same minute never collide.
	timeLayout = "03_04_05_PM"
	infoLayout = "2006-01-02T15:04:05.000000"
)

// nowFunc is swapped in tests to control folder names.
var nowFunc = time.Now

// Platform describes the host a run executed on.
type Platform struct {
	System    string `json:"system"`
	Arch      string `json:"arch"`
	GoVersion string `json:"go_version"`
	Hostname  string `json:"hostname,omitempty"`
}

// Info is the content of run_info.json.
type Info struct {
	AppName    string   `json:"app_name"`
	ScriptName string   `json:"script_name"`
	StartedAt  string   `json:"started_at"`
	RunDir     string   `json:"run_dir"`
	Platform   Platform `json:"platform"`
	Status     string   `json:"status"`
	EndedAt    string   `json:"ended_at,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// RunContext manages the artifact tree of one run.
type RunContext struct {
	appName    string
	scriptName string
	startTime  time.Time

	runDir         string
	screenshotsDir string
	tracesDir      string
	videosDir      string
	exportsDir     string
	logFile        string
	infoFile       string

	mu                sync.Mutex
	screenshotCounter int
	status            string
}

// New creates the artifact tree for a run without touching the process-wide
// context. An empty baseDir means DefaultBaseDir.
func New(appName, scriptName, baseDir string) (*RunContext, error) {
	if appName == "" {
		return nil, fmt.Errorf("app name is required")
	}
	if scriptName == "" {
		scriptName = appName
	}
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}

	start := nowFunc()
	runDir := filepath.Join(baseDir, appName, start.Format(dateLayout), start.Format(timeLayout))

	rc := &RunContext{
		appName:        appName,
		scriptName:     scriptName,
		startTime:      start,
		runDir:         runDir,
		screenshotsDir: filepath.Join(runDir, "screenshots"),
		tracesDir:      filepath.Join(runDir, "traces"),
		videosDir:      filepath.Join(runDir, "videos"),
		exportsDir:     filepath.Join(runDir, "exports"),
		logFile:        filepath.Join(runDir, logFileName),
		infoFile:       filepath.Join(runDir, infoFileName),
		status:         StatusRunning,
	}

	for _, dir := range []string{rc.runDir, rc.screenshotsDir, rc.tracesDir, rc.videosDir, rc.exportsDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}

	if err := rc.writeInfo(rc.initialInfo()); err != nil {
		return nil, err
	}
	return rc, nil
}

func (rc *RunContext) initialInfo() Info {
	hostname, _ := os.Hostname()
	return Info{
		AppName:    rc.appName,
		ScriptName: rc.scriptName,
		StartedAt:  rc.startTime.Format(infoLayout),
		RunDir:     rc.runDir,
		Platform: Platform{
			System:    runtime.GOOS,
			Arch:      runtime.GOARCH,
			GoVersion: runtime.Version(),
			Hostname:  hostname,
		},
		Status: StatusRunning,
	}
}

func (rc *RunContext) writeInfo(info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run info: %w", err)
	}
	if err := os.WriteFile(rc.infoFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write run info: %w", err)
	}
	return nil
}

// Info reads run_info.json back from disk.
func (rc *RunContext) Info() (Info, error) {
	var info Info
	data, err := os.ReadFile(rc.infoFile)
	if err != nil {
		return info, fmt.Errorf("failed to read run info: %w", err)
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("failed to parse run info: %w", err)
	}
	return info, nil
}

// UpdateStatus records the final status of the run. Failures are ignored: a
// missing or unreadable run_info.json never interrupts the automation.
func (rc *RunContext) UpdateStatus(status, errMsg string) {
	rc.mu.Lock()
	rc.status = status
	rc.mu.Unlock()

	info, err := rc.Info()
	if err != nil {
		return
	}
	info.Status = status
	info.EndedAt = nowFunc().Format(infoLayout)
	if errMsg != "" {
		info.Error = errMsg
	}
	_ = rc.writeInfo(info)
}

// ScreenshotPath returns the path for a screenshot. With autoNumber the name
// is prefixed with a zero-padded sequence number (001_login.png).
func (rc *RunContext) ScreenshotPath(name string, autoNumber bool) string {
	if !autoNumber {
		return filepath.Join(rc.screenshotsDir, name+".png")
	}

	rc.mu.Lock()
	rc.screenshotCounter++
	n := rc.screenshotCounter
	rc.mu.Unlock()

	return filepath.Join(rc.screenshotsDir, fmt.Sprintf("%03d_%s.png", n, name))
}

// ExportPath returns a path in the exports directory.
func (rc *RunContext) ExportPath(filename string) string {
	return filepath.Join(rc.exportsDir, filename)
}

// TracePath returns the path of a Playwright trace archive.
func (rc *RunContext) TracePath(name string) string {
	return filepath.Join(rc.tracesDir, name+".zip")
}

// VideoPath returns the path of a recorded video.
func (rc *RunContext) VideoPath(name string) string {
	return filepath.Join(rc.videosDir, name+".webm")
}

// FilePath returns a path directly under the run directory.
func (rc *RunContext) FilePath(filename string) string {
	return filepath.Join(rc.runDir, filename)
}

func (rc *RunContext) AppName() string        { return rc.appName }
func (rc *RunContext) ScriptName() string     { return rc.scriptName }
func (rc *RunContext) StartTime() time.Time   { return rc.startTime }
func (rc *RunContext) RunDir() string         { return rc.runDir }
func (rc *RunContext) LogFile() string        { return rc.logFile }
func (rc *RunContext) InfoFile() string       { return rc.infoFile }
func (rc *RunContext) ScreenshotsDir() string { return rc.screenshotsDir }
func (rc *RunContext) TracesDir() string      { return rc.tracesDir }
func (rc *RunContext) VideosDir() string      { return rc.videosDir }
func (rc *RunContext) ExportsDir() string     { return rc.exportsDir }

// ScreenshotCount returns how many numbered screenshot paths were handed out.
func (rc *RunContext) ScreenshotCount() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.screenshotCounter
}

// Status returns the in-memory run status.
func (rc *RunContext) Status() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.status
}

func (rc *RunContext) String() string {
	return fmt.Sprintf("RunContext(app=%s, script=%s, dir=%s)", rc.appName, rc.scriptName, rc.runDir)
}

var (
	current   *RunContext
	currentMu sync.Mutex
)

// Initialize creates a run context and makes it the process-wide current one,
// replacing any previous context.
func Initialize(appName, scriptName, baseDir string) (*RunContext, error) {
	rc, err := New(appName, scriptName, baseDir)
	if err != nil {
		return nil, err
	}

	currentMu.Lock()
	current = rc
	currentMu.Unlock()
	return rc, nil
}

// Current returns the active run context, or nil before Initialize.
func Current() *RunContext {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current
}

// Reset clears the current run context.
func Reset() {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = nil
}
