// Package browser owns the Playwright driver and browser process for a run:
// launch once, hand out contexts and pages, collect traces on close.
package browser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/rpacore/pkg/config"
	"github.com/entrhq/rpacore/pkg/logging"
	"github.com/entrhq/rpacore/pkg/performance"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to a console logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTracker records the launch time as a browser metric when a session is
// active.
func WithTracker(t *performance.Tracker) Option {
	return func(m *Manager) { m.tracker = t }
}

// Manager manages the browser lifecycle, its contexts and their traces.
type Manager struct {
	mu       sync.Mutex
	settings *config.Settings
	logger   *logging.Logger
	tracker  *performance.Tracker

	pw          *playwright.Playwright
	browserType playwright.BrowserType
	browser     playwright.Browser
	contexts    []playwright.BrowserContext
	traces      map[playwright.BrowserContext]string
}

// NewManager creates a manager. Nothing is started until Launch.
func NewManager(settings *config.Settings, opts ...Option) *Manager {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	m := &Manager{
		settings: settings,
		traces:   make(map[playwright.BrowserContext]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger, _ = logging.NewLogger("browser", "", logging.Options{Level: settings.EffectiveLogLevel()})
	}
	return m
}

// Settings returns the settings the manager launches with.
func (m *Manager) Settings() *config.Settings {
	return m.settings
}

// Launched reports whether the browser is running.
func (m *Manager) Launched() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// Launch installs and starts the driver and launches the configured browser
// engine. Calling it again after a successful launch is a no-op.
func (m *Manager) Launch() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		return nil
	}

	s := m.settings
	start := time.Now()
	m.logger.Infof("Launching browser | type=%s, headless=%t, slow_mo=%dms", s.BrowserType, s.Headless, s.SlowMoMs)

	// Driver output is discarded so it does not interleave with run logs.
	opts := &playwright.RunOptions{
		Browsers: []string{s.BrowserType},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	bt := engine(pw, s.BrowserType)
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.Headless),
		SlowMo:   playwright.Float(float64(s.SlowMoMs)),
	}
	if !s.Headless && s.BrowserType == config.BrowserChromium {
		launchOpts.Args = []string{"--start-maximized"}
	}
	b, err := bt.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	m.pw = pw
	m.browserType = bt
	m.browser = b

	elapsed := time.Since(start)
	m.logger.Infof("Browser launched successfully in %.2fs", elapsed.Seconds())

	err = m.tracker.RecordBrowserMetric(performance.BrowserMetric{
		PageLoadTime: elapsed,
		ViewportSize: s.ViewportString(),
	})
	if err != nil {
		m.logger.Debugf("Could not track browser launch performance: %v", err)
	}
	return nil
}

func engine(pw *playwright.Playwright, name string) playwright.BrowserType {
	switch name {
	case config.BrowserFirefox:
		return pw.Firefox
	case config.BrowserWebKit:
		return pw.WebKit
	default:
		return pw.Chromium
	}
}

// NewContext creates a browser context. A profile directory yields a
// persistent context; otherwise a fresh isolated one.
func (m *Manager) NewContext(opts ContextOptions) (playwright.BrowserContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil, ErrNotLaunched
	}

	s := m.settings
	if s.DownloadsDir != "" {
		if err := os.MkdirAll(s.DownloadsDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create downloads directory: %w", err)
		}
	}

	vp := Viewport{Width: s.ViewportWidth, Height: s.ViewportHeight}
	if opts.Viewport != nil {
		vp = *opts.Viewport
	}
	size := &playwright.Size{Width: vp.Width, Height: vp.Height}

	var video *playwright.RecordVideo
	if opts.RecordVideoDir != "" {
		video = &playwright.RecordVideo{Dir: opts.RecordVideoDir, Size: size}
		m.logger.Infof("Video recording enabled | dir=%s", opts.RecordVideoDir)
	}

	var (
		bc  playwright.BrowserContext
		err error
	)
	if opts.UserProfileDir != "" {
		m.logger.Infof("Creating persistent context | profile=%s", opts.UserProfileDir)
		bc, err = m.browserType.LaunchPersistentContext(opts.UserProfileDir, playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless:        playwright.Bool(s.Headless),
			SlowMo:          playwright.Float(float64(s.SlowMoMs)),
			Viewport:        size,
			AcceptDownloads: playwright.Bool(true),
			RecordVideo:     video,
		})
	} else {
		incognito := s.Incognito
		if opts.Incognito != nil {
			incognito = *opts.Incognito
		}
		mode := "standard"
		if incognito {
			mode = "incognito"
		}
		m.logger.Infof("Creating new context | mode=%s, viewport=%s", mode, vp)
		bc, err = m.browser.NewContext(playwright.BrowserNewContextOptions{
			Viewport:        size,
			AcceptDownloads: playwright.Bool(true),
			RecordVideo:     video,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	if opts.TracePath != "" {
		err := bc.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
			Sources:     playwright.Bool(true),
		})
		if err != nil {
			m.logger.Warnf("Failed to start tracing: %v", err)
		} else {
			m.logger.Debugf("Starting trace collection | file=%s", opts.TracePath)
			m.traces[bc] = opts.TracePath
		}
	}

	m.contexts = append(m.contexts, bc)
	return bc, nil
}

// NewPage opens a page in bc with the configured default and navigation
// timeouts.
func (m *Manager) NewPage(bc playwright.BrowserContext) (playwright.Page, error) {
	m.logger.Debugf("Creating new page in context")
	start := time.Now()

	page, err := bc.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(m.settings.DefaultTimeoutMs))
	page.SetDefaultNavigationTimeout(float64(m.settings.NavTimeoutMs))

	m.logger.Debugf("Page created in %.3fs", time.Since(start).Seconds())
	return page, nil
}

// CloseContext saves the context's trace, if tracing, and closes it. Both
// steps are attempted; their errors are joined.
func (m *Manager) CloseContext(bc playwright.BrowserContext) error {
	m.mu.Lock()
	tracePath, tracing := m.traces[bc]
	delete(m.traces, bc)
	for i, c := range m.contexts {
		if c == bc {
			m.contexts = append(m.contexts[:i], m.contexts[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	var errs []error
	if tracing {
		m.logger.Debugf("Saving trace | file=%s", tracePath)
		if err := bc.Tracing().Stop(tracePath); err != nil {
			errs = append(errs, fmt.Errorf("failed to save trace %s: %w", tracePath, err))
		}
	}
	if err := bc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}
	return errors.Join(errs...)
}

// Close closes every open context, the browser and the driver.
func (m *Manager) Close() error {
	m.logger.Infof("Closing browser and all contexts")

	m.mu.Lock()
	contexts := append([]playwright.BrowserContext(nil), m.contexts...)
	m.mu.Unlock()

	for _, bc := range contexts {
		if err := m.CloseContext(bc); err != nil {
			m.logger.Warnf("Error closing context: %v", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		m.browser = nil
	}
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		m.pw = nil
	}
	m.browserType = nil

	m.logger.Infof("Browser cleanup completed")
	return errors.Join(errs...)
}
