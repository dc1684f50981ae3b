// Package ui wraps a Playwright page with logged, error-wrapped interaction
// helpers that record each call as an action on the bound step.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/rpacore/pkg/browser"
	"github.com/entrhq/rpacore/pkg/logging"
	"github.com/entrhq/rpacore/pkg/performance"
)

// Wait conditions for Goto.
const (
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
	WaitNetworkIdle      = "networkidle"
	WaitCommit           = "commit"
)

const maskedValue = "***MASKED***"

// Option configures a UI.
type Option func(*UI)

// WithLogger sets the logger. Defaults to a console logger.
func WithLogger(l *logging.Logger) Option {
	return func(u *UI) { u.logger = l }
}

// WithTracker records navigation timing as browser metrics.
func WithTracker(t *performance.Tracker) Option {
	return func(u *UI) { u.tracker = t }
}

// WithTimeout sets the per-action timeout in milliseconds. Zero keeps the
// page default.
func WithTimeout(ms int) Option {
	return func(u *UI) { u.timeoutMs = ms }
}

// WithRetry retries every action up to attempts times, waiting delay between
// tries.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(u *UI) {
		u.attempts = attempts
		u.delay = delay
	}
}

// UI is the interaction helper over one page.
type UI struct {
	page      playwright.Page
	logger    *logging.Logger
	tracker   *performance.Tracker
	step      *performance.Step
	timeoutMs int
	attempts  int
	delay     time.Duration
}

// New wraps page.
func New(page playwright.Page, opts ...Option) *UI {
	u := &UI{page: page, attempts: 1}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger, _ = logging.NewLogger("ui", "", logging.Options{})
	}
	if u.attempts < 1 {
		u.attempts = 1
	}
	return u
}

// Page returns the wrapped page.
func (u *UI) Page() playwright.Page {
	return u.page
}

// WithinStep returns a copy whose actions are recorded on step.
func (u *UI) WithinStep(step *performance.Step) *UI {
	c := *u
	c.step = step
	return &c
}

func (u *UI) timeout() *float64 {
	if u.timeoutMs <= 0 {
		return nil
	}
	return playwright.Float(float64(u.timeoutMs))
}

// do runs fn with the configured retries and records the outcome as one
// action.
func (u *UI) do(actionType, target, value string, fn func() error) error {
	start := time.Now()
	retries, err := Retry(u.attempts, u.delay, fn)
	if retries > 0 {
		u.logger.Debugf("Action retried | type=%s, target=%s, retries=%d", actionType, target, retries)
	}

	if u.step != nil {
		a := performance.Action{
			Type:       actionType,
			Target:     target,
			Value:      value,
			StartedAt:  start,
			Duration:   time.Since(start),
			Success:    err == nil,
			RetryCount: retries,
		}
		if err != nil {
			a.Error = err.Error()
		}
		u.step.TrackAction(a)
	}
	return err
}

// Goto navigates and records the page timing as a browser metric.
func (u *UI) Goto(url, wait string) error {
	if wait == "" {
		wait = WaitLoad
	}
	u.logger.Infof("Navigating to URL | url=%s, wait=%s", url, wait)

	waitUntil := playwright.WaitUntilState(wait)
	err := u.do("navigate", url, "", func() error {
		_, err := u.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: &waitUntil,
			Timeout:   u.timeout(),
		})
		return err
	})
	if err != nil {
		u.logger.Errorf("Navigation failed | url=%s, error=%v", url, err)
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	u.logger.Infof("Navigation successful | url=%s", url)

	if u.tracker.Active() {
		m, err := browser.PageTiming(u.page)
		if err != nil {
			u.logger.Debugf("Could not read page timing: %v", err)
		}
		if err := u.tracker.RecordBrowserMetric(m); err != nil {
			u.logger.Debugf("Could not track navigation: %v", err)
		}
	}
	return nil
}

// Click clicks the element. name is used in logs and errors instead of the
// selector when given.
func (u *UI) Click(selector, name string) error {
	label := name
	if label == "" {
		label = selector
	}
	u.logger.Infof("Clicking element | element=%s, selector=%s", label, selector)

	err := u.do("click", selector, "", func() error {
		return u.page.Click(selector, playwright.PageClickOptions{Timeout: u.timeout()})
	})
	if err != nil {
		u.logger.Errorf("Click failed | element=%s, selector=%s, error=%v", label, selector, err)
		return fmt.Errorf("failed to click '%s': %w", label, err)
	}
	u.logger.Debugf("Click successful | element=%s", label)
	return nil
}

// InputText fills the element, or types into it when clear is false. Values
// of password-like fields are masked in logs and action records.
func (u *UI) InputText(selector, text string, clear bool) error {
	display := text
	if len(display) > 50 {
		display = display[:50]
	}
	if strings.Contains(strings.ToLower(selector), "pass") {
		display = maskedValue
	}
	u.logger.Infof("Inputting text | selector=%s, text=%s, clear=%t", selector, display, clear)

	err := u.do("input", selector, display, func() error {
		if clear {
			return u.page.Fill(selector, text, playwright.PageFillOptions{Timeout: u.timeout()})
		}
		return u.page.Type(selector, text, playwright.PageTypeOptions{Timeout: u.timeout()})
	})
	if err != nil {
		u.logger.Errorf("Text input failed | selector=%s, error=%v", selector, err)
		return fmt.Errorf("failed to input text into '%s': %w", selector, err)
	}
	u.logger.Debugf("Text input successful | selector=%s", selector)
	return nil
}

// Hover moves the pointer over the element.
func (u *UI) Hover(selector string) error {
	u.logger.Debugf("Hovering over element | selector=%s", selector)
	err := u.do("hover", selector, "", func() error {
		return u.page.Hover(selector, playwright.PageHoverOptions{Timeout: u.timeout()})
	})
	if err != nil {
		u.logger.Errorf("Hover failed | selector=%s, error=%v", selector, err)
		return fmt.Errorf("failed to hover over '%s': %w", selector, err)
	}
	return nil
}

// Press sends a key (Enter, Tab, Escape) to the element.
func (u *UI) Press(selector, key string) error {
	u.logger.Debugf("Pressing key | selector=%s, key=%s", selector, key)
	err := u.do("press", selector, key, func() error {
		return u.page.Press(selector, key, playwright.PagePressOptions{Timeout: u.timeout()})
	})
	if err != nil {
		u.logger.Errorf("Key press failed | selector=%s, key=%s, error=%v", selector, key, err)
		return fmt.Errorf("failed to press '%s' on '%s': %w", key, selector, err)
	}
	return nil
}

// SelectOption selects values in a select element.
func (u *UI) SelectOption(selector string, values ...string) error {
	joined := strings.Join(values, ",")
	u.logger.Infof("Selecting option | selector=%s, value=%s", selector, joined)

	err := u.do("select", selector, joined, func() error {
		_, err := u.page.SelectOption(selector, playwright.SelectOptionValues{Values: &values},
			playwright.PageSelectOptionOptions{Timeout: u.timeout()})
		return err
	})
	if err != nil {
		u.logger.Errorf("Select option failed | selector=%s, value=%s, error=%v", selector, joined, err)
		return fmt.Errorf("failed to select option '%s' in '%s': %w", joined, selector, err)
	}
	u.logger.Debugf("Option selected | selector=%s, value=%s", selector, joined)
	return nil
}

// Check ticks a checkbox or radio button.
func (u *UI) Check(selector string) error {
	u.logger.Infof("Checking element | selector=%s", selector)
	err := u.do("check", selector, "", func() error {
		return u.page.Check(selector, playwright.PageCheckOptions{Timeout: u.timeout()})
	})
	if err != nil {
		u.logger.Errorf("Check failed | selector=%s, error=%v", selector, err)
		return fmt.Errorf("failed to check '%s': %w", selector, err)
	}
	return nil
}

// WaitVisible waits until the element is visible.
func (u *UI) WaitVisible(selector string) error {
	return u.waitFor(selector, "visible")
}

// WaitHidden waits until the element is hidden or detached.
func (u *UI) WaitHidden(selector string) error {
	return u.waitFor(selector, "hidden")
}

func (u *UI) waitFor(selector, label string) error {
	u.logger.Debugf("Waiting for element %s | selector=%s", label, selector)
	state := playwright.WaitForSelectorState(label)
	err := u.do("wait", selector, label, func() error {
		_, err := u.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			State:   &state,
			Timeout: u.timeout(),
		})
		return err
	})
	if err != nil {
		u.logger.Errorf("Wait %s failed | selector=%s, error=%v", label, selector, err)
		return fmt.Errorf("element '%s' did not become %s: %w", selector, label, err)
	}
	u.logger.Debugf("Element %s | selector=%s", label, selector)
	return nil
}

// Text returns the element's trimmed text content.
func (u *UI) Text(selector string) (string, error) {
	var text string
	err := u.do("read", selector, "", func() error {
		var err error
		text, err = u.page.TextContent(selector, playwright.PageTextContentOptions{Timeout: u.timeout()})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to read text of '%s': %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// IsVisible reports whether the element is visible right now. It does not
// wait and is not recorded as an action.
func (u *UI) IsVisible(selector string) bool {
	visible, err := u.page.IsVisible(selector)
	if err != nil {
		u.logger.Debugf("Visibility check failed | selector=%s, error=%v", selector, err)
		return false
	}
	return visible
}

// Retry calls fn up to attempts times, sleeping delay between failures. It
// returns how many retries were needed and the last error.
func Retry(attempts int, delay time.Duration, fn func() error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return attempt, nil
		}
		if attempt < attempts-1 && delay > 0 {
			time.Sleep(delay)
		}
	}
	return attempts - 1, err
}
