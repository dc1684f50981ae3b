// Package video concatenates the per-page recordings of a run into a single
// file with an external tool (ffmpeg by default).
package video

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds a merge when the Merger sets none.
const DefaultTimeout = 2 * time.Minute

var (
	// ErrToolNotFound means the merge binary is not on PATH.
	ErrToolNotFound = errors.New("video merge tool not found")

	// ErrNoInputs means Merge was called without videos.
	ErrNoInputs = errors.New("no videos to merge")
)

// MergeError is a failed or timed-out merge process.
type MergeError struct {
	Binary string
	Output string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("video merge with %s failed: %v", e.Binary, e.Err)
}

// Unwrap returns the underlying error
func (e *MergeError) Unwrap() error {
	return e.Err
}

// Merger runs the concatenation tool. The zero value uses ffmpeg from PATH
// with DefaultTimeout.
type Merger struct {
	Binary   string
	LookPath func(file string) (string, error)
	Timeout  time.Duration
}

func (m *Merger) binary() string {
	if m.Binary == "" {
		return "ffmpeg"
	}
	return m.Binary
}

func (m *Merger) locate() (string, error) {
	look := m.LookPath
	if look == nil {
		look = exec.LookPath
	}
	path, err := look(m.binary())
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, m.binary())
	}
	return path, nil
}

// Available reports whether the tool can be found.
func (m *Merger) Available() bool {
	_, err := m.locate()
	return err == nil
}

// Merge concatenates inputs, in order, into output without re-encoding.
func (m *Merger) Merge(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}
	bin, err := m.locate()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	list, err := writeConcatList(filepath.Dir(output), inputs)
	if err != nil {
		return err
	}
	defer os.Remove(list)

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, bin,
		"-y", "-f", "concat", "-safe", "0", "-i", list, "-c", "copy", output)
	cmd.WaitDelay = time.Second

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := execCtx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &MergeError{Binary: m.binary(), Output: string(out), Err: err}
	}
	return nil
}

// writeConcatList writes the concat demuxer input file into dir.
func writeConcatList(dir string, inputs []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}

	var b strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			abs = in
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	return f.Name(), nil
}
