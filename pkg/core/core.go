// Package core ties one automation run together: its artifact folder, the
// shared browser and logger, performance tracking, and the ordered teardown
// that collects videos, closes the page and writes the report.
//
// A Core is single-use and not safe for concurrent use. One run at a time is
// expected per process; the Registry is what runs share.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/rpacore/pkg/browser"
	"github.com/entrhq/rpacore/pkg/config"
	"github.com/entrhq/rpacore/pkg/logging"
	"github.com/entrhq/rpacore/pkg/performance"
	"github.com/entrhq/rpacore/pkg/performance/report"
	"github.com/entrhq/rpacore/pkg/runcontext"
	"github.com/entrhq/rpacore/pkg/ui"
	"github.com/entrhq/rpacore/pkg/video"
)

// VideoMerger concatenates page recordings. *video.Merger implements it.
type VideoMerger interface {
	Available() bool
	Merge(ctx context.Context, inputs []string, output string) error
}

// Artifacts describes what a finished run left behind.
type Artifacts struct {
	RunDir      string
	LogFile     string
	Status      string
	Error       string
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    string
	Screenshots int
	TracePath   string
	// Videos are the per-page recordings. They are kept when merging is
	// skipped or fails.
	Videos      []string
	MergedVideo string
	Report      string
}

// Option configures a Core.
type Option func(*Core)

// WithScriptName names the run. Defaults to script_YYYYMMDD_HHMMSS.
func WithScriptName(name string) Option {
	return func(c *Core) { c.scriptName = name }
}

// WithHeadless overrides the headless setting.
func WithHeadless(headless bool) Option {
	return func(c *Core) { c.headless = &headless }
}

// WithPerformanceTracking overrides whether the run is tracked.
func WithPerformanceTracking(enabled bool) Option {
	return func(c *Core) { c.tracking = &enabled }
}

// WithTracing overrides whether a Playwright trace is recorded.
func WithTracing(enabled bool) Option {
	return func(c *Core) { c.tracing = &enabled }
}

// WithVideo overrides whether pages are recorded.
func WithVideo(enabled bool) Option {
	return func(c *Core) { c.video = &enabled }
}

// WithViewport overrides the viewport size.
func WithViewport(width, height int) Option {
	return func(c *Core) { c.viewport = &browser.Viewport{Width: width, Height: height} }
}

// WithUserProfileDir runs in a persistent context rooted at dir.
func WithUserProfileDir(dir string) Option {
	return func(c *Core) { c.userProfileDir = dir }
}

// WithIncognito overrides the incognito setting for persistent contexts.
func WithIncognito(incognito bool) Option {
	return func(c *Core) { c.incognito = &incognito }
}

// WithMetadata attaches free-form metadata to the run. The keys environment,
// browser_type and user_agent override the recorded run fields.
func WithMetadata(metadata map[string]any) Option {
	return func(c *Core) { c.metadata = metadata }
}

// WithTags tags the tracked run.
func WithTags(tags ...string) Option {
	return func(c *Core) { c.tags = tags }
}

// WithNotes adds notes to the tracked run.
func WithNotes(notes string) Option {
	return func(c *Core) { c.notes = notes }
}

// WithBaseDir sets the artifacts root. Defaults to the ArtifactsDir setting.
func WithBaseDir(dir string) Option {
	return func(c *Core) { c.baseDir = dir }
}

// WithOutput sets where the banners are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Core) { c.out = w }
}

// WithVideoMerger replaces the merge tool.
func WithVideoMerger(m VideoMerger) Option {
	return func(c *Core) { c.merger = m }
}

// Core is one automation run.
type Core struct {
	reg      *Registry
	settings *config.Settings

	appName        string
	scriptName     string
	headless       *bool
	tracking       *bool
	tracing        *bool
	video          *bool
	viewport       *browser.Viewport
	userProfileDir string
	incognito      *bool
	metadata       map[string]any
	tags           []string
	notes          string
	baseDir        string
	out            io.Writer
	merger         VideoMerger
	styles         bannerStyles
	now            func() time.Time

	rc      *runcontext.RunContext
	logger  *logging.Logger
	tracker *performance.Tracker

	browser   BrowserManager
	context   playwright.BrowserContext
	page      playwright.Page
	ui        *ui.UI
	session   *performance.Session
	runID     string
	tracePath string

	started   bool
	closed    bool
	startTime time.Time
	artifacts Artifacts
}

// New prepares a run of appName: it creates the run folder and points the
// shared logger at the run's log file. Nothing is launched until the browser
// or page is first used.
func New(reg *Registry, appName string, opts ...Option) (*Core, error) {
	if reg == nil {
		reg = Default()
	}
	c := &Core{reg: reg, appName: appName, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	if c.appName == "" {
		c.appName = "automation"
	}
	if c.scriptName == "" {
		c.scriptName = "script_" + c.now().Format("20060102_150405")
	}

	c.settings = reg.Settings().Clone()
	if c.headless != nil {
		c.settings.Headless = *c.headless
	}
	if c.tracking != nil {
		c.settings.PerformanceTracking = *c.tracking
	}
	if c.tracing != nil {
		c.settings.TraceEnabled = *c.tracing
	}
	if c.video != nil {
		c.settings.VideoRecording = *c.video
	}
	if c.incognito != nil {
		c.settings.Incognito = *c.incognito
	}
	if c.viewport != nil {
		c.settings.ViewportWidth = c.viewport.Width
		c.settings.ViewportHeight = c.viewport.Height
	}
	if c.baseDir == "" {
		c.baseDir = c.settings.ArtifactsDir
	}
	if c.out == nil {
		c.out = os.Stdout
	}
	if c.merger == nil {
		c.merger = &video.Merger{Timeout: c.settings.VideoMergeTimeout}
	}
	c.styles = newBannerStyles(c.out, c.settings.ColoredOutput)

	rc, err := runcontext.New(c.appName, c.scriptName, c.baseDir)
	if err != nil {
		return nil, err
	}
	c.rc = rc
	c.logger = reg.Logger(rc.LogFile())

	if c.settings.PerformanceTracking {
		tracker, err := reg.Tracker()
		if err != nil {
			rc.UpdateStatus(runcontext.StatusFailed, err.Error())
			return nil, err
		}
		c.tracker = tracker
	}

	c.logger.Infof("Automation core initialized | app=%s, script=%s, run_dir=%s", c.appName, c.scriptName, rc.RunDir())
	return c, nil
}

// Settings returns the effective settings of this run.
func (c *Core) Settings() *config.Settings { return c.settings }

// Logger returns the run logger.
func (c *Core) Logger() *logging.Logger { return c.logger }

// RunContext returns the run's artifact folder.
func (c *Core) RunContext() *runcontext.RunContext { return c.rc }

// Tracker returns the performance tracker, nil when tracking is disabled.
func (c *Core) Tracker() *performance.Tracker { return c.tracker }

// ScriptName returns the script name of the run.
func (c *Core) ScriptName() string { return c.scriptName }

// Browser returns the shared browser, launching it on first use.
func (c *Core) Browser() (BrowserManager, error) {
	if c.browser != nil {
		return c.browser, nil
	}
	b, err := c.reg.Browser(c.settings)
	if err != nil {
		return nil, err
	}
	c.browser = b
	return b, nil
}

// Page returns the run's page, creating its browser context on first use.
func (c *Core) Page() (playwright.Page, error) {
	if c.page != nil {
		return c.page, nil
	}
	b, err := c.Browser()
	if err != nil {
		return nil, err
	}

	opts := browser.ContextOptions{
		UserProfileDir: c.userProfileDir,
		Viewport:       &browser.Viewport{Width: c.settings.ViewportWidth, Height: c.settings.ViewportHeight},
	}
	if c.incognito != nil {
		opts.Incognito = c.incognito
	}
	if c.settings.VideoRecording {
		opts.RecordVideoDir = c.rc.VideosDir()
	}
	if c.settings.TraceEnabled {
		opts.TracePath = c.rc.TracePath("trace")
	}

	bc, err := b.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := b.NewPage(bc)
	if err != nil {
		if closeErr := b.CloseContext(bc); closeErr != nil {
			c.logger.Warnf("Failed to close browser context: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	c.context = bc
	c.page = page
	c.tracePath = opts.TracePath
	c.logger.Debugf("Page ready | viewport=%s, video=%t, trace=%t",
		opts.Viewport, c.settings.VideoRecording, c.settings.TraceEnabled)
	return page, nil
}

// UI returns the interaction helper over the run's page.
func (c *Core) UI() (*ui.UI, error) {
	if c.ui != nil {
		return c.ui, nil
	}
	page, err := c.Page()
	if err != nil {
		return nil, err
	}
	c.ui = ui.New(page,
		ui.WithLogger(c.logger),
		ui.WithTracker(c.tracker),
		ui.WithTimeout(c.settings.ActionTimeoutMs),
		ui.WithRetry(c.settings.MaxRetries, c.settings.RetryDelay()),
	)
	return c.ui, nil
}

// Start prints the start banner and opens the tracking session. Calling it
// again has no effect.
func (c *Core) Start() {
	if c.started {
		return
	}
	c.started = true
	c.startTime = c.now()

	c.printStartBanner()
	c.logger.Infof("Automation started | script=%s", c.scriptName)

	if c.settings.PerformanceTracking {
		c.StartPerformanceTracking(c.tags, c.notes)
	}
}

// StartPerformanceTracking opens a tracking session for this run. Failures
// are logged; the run continues untracked.
func (c *Core) StartPerformanceTracking(tags []string, notes string) {
	if c.tracker == nil {
		c.logger.Warnf("Performance tracking is disabled for this run")
		return
	}
	if c.session != nil {
		c.logger.Warnf("Performance tracking already started | session=%s", c.session.ID())
		return
	}

	headless := c.settings.Headless
	meta := performance.RunMetadata{
		ScriptName:   c.scriptName,
		Environment:  c.settings.Env,
		BrowserType:  c.settings.BrowserType,
		Headless:     &headless,
		ViewportSize: c.settings.ViewportString(),
		Tags:         tags,
		Notes:        notes,
	}
	extra := make(map[string]interface{})
	for k, v := range c.metadata {
		s, _ := v.(string)
		switch {
		case k == "environment" && s != "":
			meta.Environment = s
		case k == "browser_type" && s != "":
			meta.BrowserType = s
		case k == "user_agent" && s != "":
			meta.UserAgent = s
		default:
			extra[k] = v
		}
	}

	session := c.tracker.NewSession(meta)
	if err := session.Start(); err != nil {
		c.logger.Errorf("Failed to start performance tracking: %v", err)
		return
	}
	c.session = session
	if cur := c.tracker.CurrentSession(); cur != nil {
		c.runID = cur.RunID
	}

	entry := c.logger.WithFields(extra)
	entry.Infof("Performance tracking started | session=%s, run=%s", session.ID(), c.runID)
}

// StopPerformanceTracking ends the tracking session as successful.
func (c *Core) StopPerformanceTracking() {
	c.stopTracking(nil)
}

func (c *Core) stopTracking(runErr error) {
	if c.session == nil {
		return
	}
	if err := c.session.End(runErr); err != nil {
		c.logger.Errorf("Failed to stop performance tracking: %v", err)
		return
	}
	c.logger.Infof("Performance tracking stopped | session=%s", c.session.ID())
}

// PerformanceReport renders the run's report as summary, detailed or json.
// It returns false when tracking is off, the format is unknown or the store
// cannot be read.
func (c *Core) PerformanceReport(format string) (string, bool) {
	if c.tracker == nil {
		c.logger.Warnf("Performance tracking is disabled, no report available")
		return "", false
	}
	switch format {
	case report.FormatSummary, report.FormatDetailed, report.FormatJSON:
	default:
		c.logger.Warnf("Unknown report format: %s", format)
		return "", false
	}

	r := report.NewReporter(c.tracker.DB(), report.WithTracker(c.tracker))
	out, err := r.Report(format, c.runID)
	if err != nil {
		c.logger.Errorf("Failed to generate performance report: %v", err)
		return "", false
	}
	return out, true
}

// Step runs fn as a tracked step of this run.
func (c *Core) Step(name string, typ performance.StepType, fn func(*performance.Step) error) error {
	return c.tracker.Step(name, typ).Run(fn)
}

// activePage is the most recently opened page of the run's context, which
// may be a popup, falling back to the primary page.
func (c *Core) activePage() (playwright.Page, error) {
	if c.context != nil {
		if pages := c.context.Pages(); len(pages) > 0 {
			return pages[len(pages)-1], nil
		}
	}
	return c.Page()
}

// TakeScreenshot saves a numbered screenshot of the visible viewport and
// returns its path.
func (c *Core) TakeScreenshot(name string) (string, error) {
	return c.screenshot(name, false)
}

// TakeFullPageScreenshot saves a numbered screenshot of the whole page.
func (c *Core) TakeFullPageScreenshot(name string) (string, error) {
	return c.screenshot(name, true)
}

func (c *Core) screenshot(name string, fullPage bool) (string, error) {
	page, err := c.activePage()
	if err != nil {
		return "", err
	}

	path := c.rc.ScreenshotPath(name, true)
	animations := playwright.ScreenshotAnimations("disabled")
	caret := playwright.ScreenshotCaret("hide")
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:       &path,
		FullPage:   playwright.Bool(fullPage),
		Animations: &animations,
		Caret:      &caret,
	}); err != nil {
		c.logger.Errorf("Screenshot failed | name=%s, error=%v", name, err)
		return "", fmt.Errorf("failed to take screenshot %s: %w", name, err)
	}

	c.logger.Infof("Screenshot saved: %s", path)
	return path, nil
}

// Run starts the run, calls fn and closes the run. fn's error is returned
// unchanged; a panic in fn is re-raised after the teardown.
func (c *Core) Run(fn func(*Core) error) (err error) {
	c.Start()
	defer func() {
		if r := recover(); r != nil {
			c.Close(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn(c)
	c.Close(err)
	return err
}

// Close tears the run down in order: status, failure screenshot, tracking
// session, report, video collection, page and context, video merge, banner.
// Every stage runs even if an earlier one fails; failures are logged as
// warnings. Close never fails and only the first call does anything.
func (c *Core) Close(runErr error) Artifacts {
	if c.closed {
		return c.artifacts
	}
	c.closed = true

	end := c.now()
	a := Artifacts{
		RunDir:    c.rc.RunDir(),
		LogFile:   c.rc.LogFile(),
		StartedAt: c.startTime,
		EndedAt:   end,
		Duration:  "N/A",
		Status:    runcontext.StatusCompleted,
	}
	if c.started {
		a.Duration = FormatDuration(end.Sub(c.startTime))
	}
	if runErr != nil {
		a.Status = runcontext.StatusFailed
		a.Error = runErr.Error()
	}

	c.stage("status", func() error {
		c.rc.UpdateStatus(a.Status, a.Error)
		return nil
	})

	if runErr != nil && c.page != nil {
		c.stage("failure screenshot", func() error {
			_, err := c.TakeScreenshot("failure")
			return err
		})
	}

	c.stage("performance tracking", func() error {
		c.stopTracking(runErr)
		return nil
	})

	if c.session != nil {
		c.stage("performance report", func() error {
			if out, ok := c.PerformanceReport(report.FormatSummary); ok {
				a.Report = out
				c.logger.Infof("\n%s\nPERFORMANCE REPORT\n%s\n%s", rule(), rule(), out)
			}
			return nil
		})
	}

	var videos []string
	c.stage("video collection", func() error {
		videos = c.collectVideos()
		return nil
	})

	c.stage("page", func() error {
		if c.page == nil {
			return nil
		}
		err := c.page.Close()
		c.page = nil
		c.ui = nil
		return err
	})

	c.stage("browser context", func() error {
		if c.context == nil {
			return nil
		}
		err := c.browser.CloseContext(c.context)
		c.context = nil
		if c.tracePath != "" {
			a.TracePath = c.tracePath
		}
		return err
	})

	a.Videos = videos
	if len(videos) > 1 {
		c.stage("video merge", func() error {
			merged, err := c.mergeVideos(videos)
			a.MergedVideo = merged
			return err
		})
	}

	a.Screenshots = c.rc.ScreenshotCount()
	c.logger.Infof("Automation core closed | status=%s, duration=%s", a.Status, a.Duration)

	c.stage("banner", func() error {
		c.printEndBanner(a, runErr != nil)
		return nil
	})

	c.artifacts = a
	return a
}

// Artifacts returns what Close reported, the zero value before Close.
func (c *Core) Artifacts() Artifacts { return c.artifacts }

// stage runs one teardown step, turning errors and panics into warnings.
func (c *Core) stage(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warnf("Cleanup stage %s panicked: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Warnf("Cleanup stage %s failed: %v", name, err)
	}
}

// collectVideos returns the recording paths of the context's pages. They
// must be read before the pages close.
func (c *Core) collectVideos() []string {
	if !c.settings.VideoRecording || c.context == nil {
		return nil
	}
	var paths []string
	for _, p := range c.context.Pages() {
		v := p.Video()
		if v == nil {
			continue
		}
		path, err := v.Path()
		if err != nil {
			c.logger.Warnf("Could not read video path: %v", err)
			continue
		}
		if path != "" {
			paths = append(paths, path)
		}
	}
	if len(paths) > 0 {
		c.logger.Infof("Collected %d video(s)", len(paths))
	}
	return paths
}

// mergeVideos concatenates the recordings into one file. It returns "" when
// the tool is missing so the individual videos stay the reported artifacts.
func (c *Core) mergeVideos(videos []string) (string, error) {
	if !c.merger.Available() {
		c.logger.Infof("Video merge tool not found, keeping %d individual videos", len(videos))
		return "", nil
	}

	output := c.rc.VideoPath("merged")
	if err := c.merger.Merge(context.Background(), videos, output); err != nil {
		var mergeErr *video.MergeError
		if errors.As(err, &mergeErr) && mergeErr.Output != "" {
			c.logger.Debugf("Merge output: %s", mergeErr.Output)
		}
		return "", fmt.Errorf("keeping individual videos: %w", err)
	}

	c.logger.Infof("Merged %d videos into %s", len(videos), output)
	return output, nil
}
