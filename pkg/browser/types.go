package browser

import (
	"errors"
	"fmt"
)

// ErrNotLaunched is returned when a context is requested before Launch.
var ErrNotLaunched = errors.New("browser not launched")

// Viewport is the page viewport in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// String renders the viewport as WxH.
func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// ContextOptions configures a new browser context.
type ContextOptions struct {
	// UserProfileDir switches to a persistent context rooted at this directory.
	UserProfileDir string

	// Incognito overrides the configured default. Standard contexts are
	// isolated either way; the flag only matters when no profile is given.
	Incognito *bool

	// Viewport overrides the configured viewport.
	Viewport *Viewport

	// RecordVideoDir enables video recording into this directory.
	RecordVideoDir string

	// TracePath starts tracing and names the archive written on CloseContext.
	TracePath string
}
