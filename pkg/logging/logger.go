package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timestampFormat = "2006-01-02 15:04:05.000"

	// Rotation limits for run log files
	maxLogSizeMB  = 10
	maxLogBackups = 5
)

// Options configures a Logger.
type Options struct {
	// Level is a logrus level name (debug, info, warn, error). Default: info.
	Level string

	// Console receives coloured output. Default: os.Stderr. Use io.Discard to silence.
	Console io.Writer

	// DisableColors turns off console colours.
	DisableColors bool
}

// Logger provides leveled logging for automation runs.
// Entries go to the console and, once a log file is set, to a rotated plain
// text file inside the run's artifact folder.
type Logger struct {
	component string
	base      *logrus.Logger
	entry     *logrus.Entry

	mu       sync.Mutex
	file     *lumberjack.Logger
	fileHook *fileHook
	logPath  string

	closeOnce sync.Once
}

// NewLogger creates a logger for a component. When logPath is empty the
// logger writes to the console only.
//
// If the log file cannot be prepared, it returns a console-only logger along
// with the error. Callers can check the error to detect fallback mode.
func NewLogger(component, logPath string, opts Options) (*Logger, error) {
	base := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	base.SetOutput(console)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   opts.DisableColors,
		ForceColors:     !opts.DisableColors && console == os.Stderr,
	})

	l := &Logger{
		component: component,
		base:      base,
		entry:     base.WithField("component", component),
	}

	if logPath == "" {
		return l, nil
	}

	if err := l.SetLogFile(logPath); err != nil {
		l.Warnf("Failed to initialize file logging: %v", err)
		l.Warnf("Falling back to console logging")
		return l, err
	}
	return l, nil
}

// SetLogFile points file output at a new path, replacing any previous file.
// Used when a new run starts in a process that already has a logger.
func (l *Logger) SetLogFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	// Touch the file so failures surface here instead of on first write
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	_ = f.Close()

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
	}

	l.mu.Lock()
	previous := l.file
	if l.fileHook == nil {
		l.fileHook = newFileHook(writer)
		l.base.AddHook(l.fileHook)
	} else {
		l.fileHook.setWriter(writer)
	}
	l.file = writer
	l.logPath = path
	l.mu.Unlock()

	if previous != nil {
		_ = previous.Close()
	}

	l.Infof("Log file switched to: %s", path)
	return nil
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Printf logs a formatted message at info level
func (l *Logger) Printf(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

// WithFields returns an entry carrying structured fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields(fields))
}

// WithComponent returns a logger sharing outputs but tagged with another component.
func (l *Logger) WithComponent(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		component: component,
		base:      l.base,
		entry:     l.base.WithField("component", component),
		file:      l.file,
		fileHook:  l.fileHook,
		logPath:   l.logPath,
	}
}

// Writer returns an io.Writer that writes to the log file, or the console
// when no file is configured.
func (l *Logger) Writer() io.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file
	}
	return l.base.Out
}

// Component returns the component name
func (l *Logger) Component() string {
	return l.component
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.fileHook != nil {
			l.fileHook.setWriter(nil)
		}
		if l.file != nil {
			err = l.file.Close()
			l.file = nil
		}
	})
	return err
}
