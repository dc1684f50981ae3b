package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNewLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run", "automation.log")

	logger, err := NewLogger("test-component", logPath, Options{Console: io.Discard})
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, "test-component", logger.Component())
	assert.Equal(t, logPath, logger.LogPath())
	assert.FileExists(t, logPath)
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	logger, err := NewLogger("console", "", Options{Console: &console, DisableColors: true})
	require.NoError(t, err)

	logger.Infof("hello %s", "world")

	assert.Empty(t, logger.LogPath())
	assert.Contains(t, console.String(), "hello world")
	assert.Contains(t, console.String(), "component=console")
	assert.Equal(t, &console, logger.Writer())
}

func TestLogger_Levels(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "levels.log")

	logger, err := NewLogger("levels", logPath, Options{Level: "warn", Console: io.Discard})
	require.NoError(t, err)

	logger.Debugf("debug message")
	logger.Infof("info message")
	logger.Warnf("warn message")
	logger.Errorf("error message")
	require.NoError(t, logger.Close())

	content := readLog(t, logPath)
	assert.NotContains(t, content, "debug message")
	assert.NotContains(t, content, "info message")
	assert.Contains(t, content, "level=warning")
	assert.Contains(t, content, "warn message")
	assert.Contains(t, content, "level=error")
	assert.Contains(t, content, "error message")
}

func TestLogger_InvalidLevelDefaultsToInfo(t *testing.T) {
	var console bytes.Buffer
	logger, err := NewLogger("lvl", "", Options{Level: "chatty", Console: &console, DisableColors: true})
	require.NoError(t, err)

	logger.Debugf("hidden")
	logger.Printf("shown")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestLogger_SetLogFile(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first", "automation.log")
	second := filepath.Join(dir, "second", "automation.log")

	logger, err := NewLogger("switch", first, Options{Console: io.Discard})
	require.NoError(t, err)

	logger.Infof("before switch")
	require.NoError(t, logger.SetLogFile(second))
	logger.Infof("after switch")
	require.NoError(t, logger.Close())

	assert.Equal(t, second, logger.LogPath())

	firstContent := readLog(t, first)
	secondContent := readLog(t, second)

	assert.Contains(t, firstContent, "before switch")
	assert.NotContains(t, firstContent, "after switch")
	assert.Contains(t, secondContent, "after switch")
	assert.NotContains(t, secondContent, "before switch")
}

func TestLogger_FallbackOnBadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	// A regular file in the directory position makes MkdirAll fail
	logger, err := NewLogger("fallback", filepath.Join(blocker, "run", "automation.log"), Options{Console: io.Discard})
	require.Error(t, err)
	require.NotNil(t, logger, "a console logger is returned in fallback mode")

	assert.Empty(t, logger.LogPath())
	logger.Infof("still usable")
}

func TestLogger_WithFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "fields.log")
	logger, err := NewLogger("fields", logPath, Options{Console: io.Discard})
	require.NoError(t, err)

	logger.WithFields(map[string]interface{}{"step": "Login", "order": 3}).Info("step finished")
	require.NoError(t, logger.Close())

	content := readLog(t, logPath)
	assert.Contains(t, content, "step=Login")
	assert.Contains(t, content, "order=3")
	assert.Contains(t, content, "component=fields")
}

func TestLogger_WithComponent(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "child.log")
	logger, err := NewLogger("parent", logPath, Options{Console: io.Discard})
	require.NoError(t, err)

	child := logger.WithComponent("browser")
	child.Infof("launched")
	require.NoError(t, logger.Close())

	assert.Equal(t, "browser", child.Component())
	assert.Contains(t, readLog(t, logPath), "component=browser")
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	logger, err := NewLogger("close", filepath.Join(t.TempDir(), "close.log"), Options{Console: io.Discard})
	require.NoError(t, err)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())

	// Logging after close only reaches the console
	logger.Infof("after close")
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	logger, err := NewLogger("concurrent", logPath, Options{Console: io.Discard})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.Infof("goroutine %d message %d", id, j)
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, logger.Close())

	lines := strings.Count(readLog(t, logPath), "goroutine ")
	assert.Equal(t, 100, lines)
}
