package core

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/rpacore/pkg/browser"
	"github.com/entrhq/rpacore/pkg/config"
	"github.com/entrhq/rpacore/pkg/logging"
	"github.com/entrhq/rpacore/pkg/performance"
)

// BrowserManager is what the core needs from a launched browser.
// *browser.Manager implements it.
type BrowserManager interface {
	NewContext(opts browser.ContextOptions) (playwright.BrowserContext, error)
	NewPage(bc playwright.BrowserContext) (playwright.Page, error)
	CloseContext(bc playwright.BrowserContext) error
	Close() error
}

// BrowserFactory builds and launches a BrowserManager.
type BrowserFactory func(settings *config.Settings, logger *logging.Logger, tracker *performance.Tracker) (BrowserManager, error)

// LaunchBrowser is the default BrowserFactory.
func LaunchBrowser(settings *config.Settings, logger *logging.Logger, tracker *performance.Tracker) (BrowserManager, error) {
	m := browser.NewManager(settings, browser.WithLogger(logger), browser.WithTracker(tracker))
	if err := m.Launch(); err != nil {
		return nil, err
	}
	return m, nil
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBrowserFactory replaces the browser launcher.
func WithBrowserFactory(f BrowserFactory) RegistryOption {
	return func(r *Registry) { r.factory = f }
}

// WithConsole sets the console writer of the shared logger.
func WithConsole(w io.Writer) RegistryOption {
	return func(r *Registry) { r.console = w }
}

// Registry owns the resources shared by all runs of a process: the logger,
// the performance tracker and the browser. Each is created on first use and
// reused afterwards.
type Registry struct {
	mu       sync.Mutex
	settings *config.Settings
	factory  BrowserFactory
	console  io.Writer

	logger  *logging.Logger
	tracker *performance.Tracker
	browser BrowserManager
}

// NewRegistry creates a registry. Nil settings means config.Get().
func NewRegistry(settings *config.Settings, opts ...RegistryOption) *Registry {
	if settings == nil {
		settings = config.Get()
	}
	r := &Registry{settings: settings, factory: LaunchBrowser}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, built from config.Get() on
// first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(nil)
	}
	return defaultRegistry
}

// CleanupAll releases the resources of the default registry.
func CleanupAll() error {
	defaultMu.Lock()
	r := defaultRegistry
	defaultMu.Unlock()
	if r == nil {
		return nil
	}
	return r.CleanupAll()
}

// Settings returns the base settings shared by all runs.
func (r *Registry) Settings() *config.Settings {
	return r.settings
}

// Logger returns the shared logger. A non-empty logFile that differs from the
// current one moves file output there, so each run writes its own run.log.
func (r *Registry) Logger(logFile string) *logging.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loggerLocked(logFile)
}

func (r *Registry) loggerLocked(logFile string) *logging.Logger {
	if r.logger == nil {
		// NewLogger returns a usable console logger together with the error.
		l, err := logging.NewLogger("rpa", logFile, logging.Options{
			Level:         r.settings.EffectiveLogLevel(),
			Console:       r.console,
			DisableColors: !r.settings.ColoredOutput,
		})
		if err != nil {
			l.Warnf("Logging to console only: %v", err)
		}
		r.logger = l
		return l
	}

	if logFile != "" && logFile != r.logger.LogPath() {
		if err := r.logger.SetLogFile(logFile); err != nil {
			r.logger.Warnf("Failed to switch log file: %v", err)
		}
	}
	return r.logger
}

// Tracker returns the shared performance tracker, opening the store on first
// use.
func (r *Registry) Tracker() (*performance.Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackerLocked()
}

func (r *Registry) trackerLocked() (*performance.Tracker, error) {
	if r.tracker != nil {
		return r.tracker, nil
	}
	t, err := performance.NewTracker(r.settings.PerformanceDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open performance store: %w", err)
	}
	r.tracker = t
	return t, nil
}

// Browser returns the shared browser, launching it with settings on first
// use. Later calls reuse it whatever settings they pass.
func (r *Registry) Browser(settings *config.Settings) (BrowserManager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}
	if settings == nil {
		settings = r.settings
	}

	logger := r.loggerLocked("")
	var tracker *performance.Tracker
	if settings.PerformanceTracking {
		t, err := r.trackerLocked()
		if err != nil {
			logger.Warnf("Launching browser without metrics: %v", err)
		}
		tracker = t
	}

	b, err := r.factory(settings, logger, tracker)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	r.browser = b
	return b, nil
}

// CleanupAll closes the browser and the tracker. The logger stays usable on
// the console; its file is closed. The registry can be used again afterwards.
func (r *Registry) CleanupAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		r.browser = nil
	}
	if r.tracker != nil {
		if err := r.tracker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close performance store: %w", err))
		}
		r.tracker = nil
	}
	if r.logger != nil {
		r.logger.Infof("Automation cleanup completed")
		if err := r.logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		r.logger = nil
	}
	return errors.Join(errs...)
}
