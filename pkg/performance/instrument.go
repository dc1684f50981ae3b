package performance

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"unicode"
)

// PageInfo is the part of a page the instrumentation reads. playwright.Page
// satisfies it.
type PageInfo interface {
	URL() string
	Title() (string, error)
}

type instrumentConfig struct {
	name            string
	typ             StepType
	page            PageInfo
	capturePageInfo bool
	captureErrors   bool
}

// InstrumentOption configures Instrument.
type InstrumentOption func(*instrumentConfig)

// Named overrides the step name derived from the function.
func Named(name string) InstrumentOption {
	return func(c *instrumentConfig) { c.name = name }
}

// OfType sets the step type. Default: action.
func OfType(typ StepType) InstrumentOption {
	return func(c *instrumentConfig) { c.typ = typ }
}

// WithPageSource gives the step a page to read its URL and title from.
func WithPageSource(p PageInfo) InstrumentOption {
	return func(c *instrumentConfig) { c.page = p }
}

// CapturePageInfo toggles reading URL and title from the page source. Default: on.
func CapturePageInfo(enabled bool) InstrumentOption {
	return func(c *instrumentConfig) { c.capturePageInfo = enabled }
}

// CaptureErrors toggles storing the error text in the step metadata under
// error_details. Default: on.
func CaptureErrors(enabled bool) InstrumentOption {
	return func(c *instrumentConfig) { c.captureErrors = enabled }
}

// Instrument wraps fn so each call is recorded as a step while a session is
// active. Without a session (or with a nil tracker) fn is called directly.
// Errors and panics from fn are never swallowed.
func Instrument(t *Tracker, fn func() error, opts ...InstrumentOption) func() error {
	cfg := newInstrumentConfig(fn, opts)
	return func() error {
		if t == nil || !t.Active() {
			return fn()
		}
		step := cfg.newStep(t)
		return step.Run(func(s *Step) error {
			err := fn()
			if err != nil && cfg.captureErrors {
				s.SetMetadata("error_details", err.Error())
			}
			return err
		})
	}
}

// InstrumentValue is Instrument for functions that also return a value.
func InstrumentValue[T any](t *Tracker, fn func() (T, error), opts ...InstrumentOption) func() (T, error) {
	cfg := newInstrumentConfig(fn, opts)
	return func() (T, error) {
		if t == nil || !t.Active() {
			return fn()
		}
		var result T
		step := cfg.newStep(t)
		err := step.Run(func(s *Step) error {
			var err error
			result, err = fn()
			if err != nil && cfg.captureErrors {
				s.SetMetadata("error_details", err.Error())
			}
			return err
		})
		return result, err
	}
}

func newInstrumentConfig(fn any, opts []InstrumentOption) *instrumentConfig {
	cfg := &instrumentConfig{
		typ:             StepAction,
		capturePageInfo: true,
		captureErrors:   true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.name == "" {
		cfg.name = StepNameFromFunc(fn)
	}
	return cfg
}

func (c *instrumentConfig) newStep(t *Tracker) *Step {
	var opts []StepOption
	if c.capturePageInfo && c.page != nil {
		opts = append(opts, pageOptions(c.page)...)
	}
	return t.Step(c.name, c.typ, opts...)
}

// pageOptions reads page details, ignoring a page that is not available.
func pageOptions(p PageInfo) (opts []StepOption) {
	defer func() {
		if recover() != nil {
			opts = nil
		}
	}()
	opts = append(opts, WithPageURL(p.URL()))
	if title, err := p.Title(); err == nil {
		opts = append(opts, WithPageTitle(title))
	}
	return opts
}

var anonymousFunc = regexp.MustCompile(`^func\d+$`)

// StepNameFromFunc turns a function's identifier into a title-cased step
// name: fillCorporateInfo and fill_corporate_info both become
// "Fill Corporate Info".
func StepNameFromFunc(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "Step"
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "Step"
	}

	full := f.Name()
	if i := strings.LastIndex(full, "/"); i >= 0 {
		full = full[i+1:]
	}
	full = strings.TrimSuffix(full, "-fm")

	parts := strings.Split(full, ".")
	ident := parts[len(parts)-1]
	// Closures are named after the function that declares them
	for i := len(parts) - 1; i > 0 && anonymousFunc.MatchString(ident); i-- {
		ident = parts[i-1]
	}
	ident = strings.Trim(ident, "(*)")

	if name := TitleCase(ident); name != "" {
		return name
	}
	return "Step"
}

// TitleCase splits an identifier on underscores and case changes and
// capitalizes each word.
func TitleCase(ident string) string {
	var words []string
	var cur []rune
	runes := []rune(ident)

	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}

	for i, r := range runes {
		if r == '_' || r == '-' || r == ' ' {
			flush()
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()

	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
