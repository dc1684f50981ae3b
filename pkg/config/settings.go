package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported browser engines.
const (
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
)

// Settings holds the automation defaults. Values come from built-in
// defaults, an optional YAML file, a .env file and the process environment,
// in that order of increasing priority.
type Settings struct {
	// Browser
	Headless    bool   `yaml:"headless" env:"HEADLESS"`
	Incognito   bool   `yaml:"incognito" env:"INCOGNITO"`
	SlowMoMs    int    `yaml:"slow_mo_ms" env:"SLOW_MO_MS"`
	BrowserType string `yaml:"browser_type" env:"BROWSER_TYPE"`

	// Timeouts in milliseconds
	DefaultTimeoutMs int `yaml:"default_timeout_ms" env:"DEFAULT_TIMEOUT_MS"`
	NavTimeoutMs     int `yaml:"nav_timeout_ms" env:"NAV_TIMEOUT_MS"`
	ActionTimeoutMs  int `yaml:"action_timeout_ms" env:"ACTION_TIMEOUT_MS"`

	// Viewport
	ViewportWidth  int `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	ViewportHeight int `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`

	// Paths
	DownloadsDir  string `yaml:"downloads_dir" env:"DOWNLOADS_DIR"`
	ArtifactsDir  string `yaml:"artifacts_dir" env:"ARTIFACTS_DIR"`
	DataDir       string `yaml:"data_dir" env:"DATA_DIR"`
	PerformanceDB string `yaml:"performance_db" env:"PERFORMANCE_DB"`

	// Recording and tracking
	TraceEnabled        bool `yaml:"trace_enabled" env:"TRACE_ENABLED"`
	PerformanceTracking bool `yaml:"performance_tracking" env:"PERFORMANCE_TRACKING"`
	VideoRecording      bool `yaml:"video_recording" env:"VIDEO_RECORDING"`

	// Logging
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL"`
	ColoredOutput bool   `yaml:"colored_output" env:"COLORED_OUTPUT"`

	// Retry
	MaxRetries   int `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelayMs int `yaml:"retry_delay_ms" env:"RETRY_DELAY_MS"`

	// VideoMergeTimeout bounds the external concatenation process.
	VideoMergeTimeout time.Duration `yaml:"video_merge_timeout" env:"VIDEO_MERGE_TIMEOUT"`

	// Env is the target environment name (dev, qa, prod).
	Env string `yaml:"env" env:"ENV"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Headless:            false,
		Incognito:           true,
		SlowMoMs:            0,
		BrowserType:         BrowserChromium,
		DefaultTimeoutMs:    30000,
		NavTimeoutMs:        60000,
		ActionTimeoutMs:     10000,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		DownloadsDir:        "downloads",
		ArtifactsDir:        "artifacts",
		DataDir:             "data",
		PerformanceDB:       filepath.Join("data", "performance.db"),
		TraceEnabled:        false,
		PerformanceTracking: true,
		VideoRecording:      false,
		LogLevel:            "",
		ColoredOutput:       true,
		MaxRetries:          3,
		RetryDelayMs:        1000,
		VideoMergeTimeout:   2 * time.Minute,
		Env:                 "dev",
	}
}

// Load builds Settings from defaults, the YAML file at path (optional, may
// be empty), a .env file in the working directory and the environment.
func Load(path string) (*Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
			}
		}
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the settings are usable.
func (s *Settings) Validate() error {
	switch s.BrowserType {
	case BrowserChromium, BrowserFirefox, BrowserWebKit:
	default:
		return fmt.Errorf("invalid browser_type: %s (must be 'chromium', 'firefox' or 'webkit')", s.BrowserType)
	}
	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.DefaultTimeoutMs <= 0 || s.NavTimeoutMs <= 0 || s.ActionTimeoutMs <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if s.SlowMoMs < 0 {
		return fmt.Errorf("slow_mo_ms cannot be negative")
	}
	if s.MaxRetries < 0 || s.RetryDelayMs < 0 {
		return fmt.Errorf("retry settings cannot be negative")
	}
	if s.VideoMergeTimeout < 0 {
		return fmt.Errorf("video_merge_timeout cannot be negative")
	}
	return nil
}

// Clone returns a copy that can be modified for a single run.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}

// ViewportString renders the viewport as WIDTHxHEIGHT.
func (s *Settings) ViewportString() string {
	return fmt.Sprintf("%dx%d", s.ViewportWidth, s.ViewportHeight)
}

// EffectiveLogLevel returns LogLevel, or debug for dev/qa and info otherwise.
func (s *Settings) EffectiveLogLevel() string {
	if s.LogLevel != "" {
		return s.LogLevel
	}
	switch s.Env {
	case "dev", "qa":
		return "debug"
	default:
		return "info"
	}
}

// RetryDelay returns the delay between retries.
func (s *Settings) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}
