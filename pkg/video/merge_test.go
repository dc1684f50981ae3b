package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool writes an executable shell script and returns a Merger that
// resolves to it.
func fakeTool(t *testing.T, body string) *Merger {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return &Merger{
		Binary:   "fake-ffmpeg",
		LookPath: func(string) (string, error) { return path, nil },
		Timeout:  5 * time.Second,
	}
}

func TestMerger_ToolNotFound(t *testing.T) {
	m := &Merger{LookPath: func(string) (string, error) { return "", errors.New("not in PATH") }}

	assert.False(t, m.Available())
	err := m.Merge(context.Background(), []string{"a.webm", "b.webm"}, filepath.Join(t.TempDir(), "out.webm"))
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), "ffmpeg")
}

func TestMerger_NoInputs(t *testing.T) {
	m := &Merger{}
	assert.ErrorIs(t, m.Merge(context.Background(), nil, "out.webm"), ErrNoInputs)
}

func TestMerger_WritesConcatList(t *testing.T) {
	// The fake copies the concat list (argument 7) to the output (last argument).
	m := fakeTool(t, `for a; do last=$a; done; cp "$7" "$last"`)
	assert.True(t, m.Available())

	dir := t.TempDir()
	inputs := []string{filepath.Join(dir, "page1.webm"), filepath.Join(dir, "it's page2.webm")}
	output := filepath.Join(dir, "merged", "run.webm")

	require.NoError(t, m.Merge(context.Background(), inputs, output))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "file '"+inputs[0]+"'", lines[0])
	assert.Equal(t, `file '`+filepath.Join(dir, `it'\''s page2.webm`)+`'`, lines[1])

	leftovers, err := filepath.Glob(filepath.Join(dir, "merged", "concat-*.txt"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "list file is removed")
}

func TestMerger_ProcessFailure(t *testing.T) {
	m := fakeTool(t, `echo "Invalid data found" >&2; exit 1`)

	err := m.Merge(context.Background(), []string{"a.webm", "b.webm"}, filepath.Join(t.TempDir(), "out.webm"))
	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, "fake-ffmpeg", mergeErr.Binary)
	assert.Contains(t, mergeErr.Output, "Invalid data found")
}

func TestMerger_Timeout(t *testing.T) {
	m := fakeTool(t, `exec sleep 10`)
	m.Timeout = 100 * time.Millisecond

	start := time.Now()
	err := m.Merge(context.Background(), []string{"a.webm", "b.webm"}, filepath.Join(t.TempDir(), "out.webm"))

	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
