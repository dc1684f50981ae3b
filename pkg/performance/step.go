package performance

import (
	"fmt"
	"time"
)

type stepState int

const (
	stepNotStarted stepState = iota
	stepRunning
	stepDone
)

// StepOption sets optional step context.
type StepOption func(*Step)

// WithPageURL records the page URL the step ran on.
func WithPageURL(url string) StepOption {
	return func(s *Step) { s.metrics.PageURL = url }
}

// WithPageTitle records the page title.
func WithPageTitle(title string) StepOption {
	return func(s *Step) { s.metrics.PageTitle = title }
}

// WithSelector records the element selector the step targets.
func WithSelector(selector string) StepOption {
	return func(s *Step) { s.metrics.ElementSelector = selector }
}

// WithElementText records the text of the targeted element.
func WithElementText(text string) StepOption {
	return func(s *Step) { s.metrics.ElementText = text }
}

// WithScreenshot links a screenshot to the step.
func WithScreenshot(path string) StepOption {
	return func(s *Step) { s.metrics.ScreenshotPath = path }
}

// WithParent links the step to an already recorded parent step. Nesting is
// advisory and not checked.
func WithParent(stepID int64) StepOption {
	return func(s *Step) { s.metrics.ParentStepID = stepID }
}

// WithMetadata adds a free-form metadata entry.
func WithMetadata(key string, value any) StepOption {
	return func(s *Step) { s.SetMetadata(key, value) }
}

// Step times one unit of work. The row is written once, fully populated,
// when End is called: not-started -> running -> success|failed.
type Step struct {
	tracker *Tracker
	metrics StepMetrics
	state   stepState
	started time.Time
	id      int64
	actions []Action
}

// Step creates a step. A nil tracker yields a step that records nothing.
func (t *Tracker) Step(name string, typ StepType, opts ...StepOption) *Step {
	if typ == "" {
		typ = StepAction
	}
	s := &Step{
		tracker: t,
		metrics: StepMetrics{Name: name, Type: typ},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Step) clock() time.Time {
	if s.tracker != nil && s.tracker.now != nil {
		return s.tracker.now()
	}
	return time.Now()
}

// Start records the start time. Calling it on a running or finished step has
// no effect.
func (s *Step) Start() *Step {
	if s.state != stepNotStarted {
		return s
	}
	s.started = s.clock()
	s.state = stepRunning
	return s
}

// SetMetadata adds or replaces a metadata entry before the step ends.
func (s *Step) SetMetadata(key string, value any) {
	if s.metrics.Metadata == nil {
		s.metrics.Metadata = make(map[string]any)
	}
	s.metrics.Metadata[key] = value
}

// TrackAction buffers an action. Actions are written with the step row so
// they always reference a real step id. Ignored unless the step is running.
func (s *Step) TrackAction(a Action) {
	if s.state != stepRunning {
		return
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = s.clock().Add(-a.Duration)
	}
	s.actions = append(s.actions, a)
}

// End finalizes the step: failed with err's message when err is non-nil,
// success otherwise. It returns the stored id, 0 when no session is active.
// Only the first call records.
func (s *Step) End(err error) (int64, error) {
	switch s.state {
	case stepDone:
		return s.id, nil
	case stepNotStarted:
		s.Start()
	}
	s.state = stepDone

	completed := s.clock()
	s.metrics.StartedAt = s.started
	s.metrics.CompletedAt = completed
	s.metrics.Duration = completed.Sub(s.started)
	if s.metrics.Duration < 0 {
		s.metrics.Duration = 0
	}

	if err != nil {
		s.metrics.Status = StepFailed
		s.metrics.ErrorMessage = err.Error()
	} else {
		s.metrics.Status = StepSuccess
	}

	if s.tracker == nil {
		return 0, nil
	}

	id, trackErr := s.tracker.TrackStep(s.metrics)
	if trackErr != nil || id == 0 {
		return id, trackErr
	}
	s.id = id

	for _, a := range s.actions {
		if err := s.tracker.TrackAction(id, a); err != nil {
			return id, err
		}
	}
	return id, nil
}

// Run starts the step, calls fn and ends the step with fn's result. A panic
// in fn is recorded as a failed step and re-raised. fn's error is returned
// as is; a store failure is returned only when fn succeeded.
func (s *Step) Run(fn func(*Step) error) (err error) {
	s.Start()
	defer func() {
		if r := recover(); r != nil {
			_, _ = s.End(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	err = fn(s)
	if _, endErr := s.End(err); endErr != nil && err == nil {
		return fmt.Errorf("record step %q: %w", s.metrics.Name, endErr)
	}
	return err
}

// ID returns the stored step id, 0 until recorded.
func (s *Step) ID() int64 { return s.id }

// Name returns the step name.
func (s *Step) Name() string { return s.metrics.Name }

// Type returns the step type.
func (s *Step) Type() StepType { return s.metrics.Type }

// Status returns the final status, empty before End.
func (s *Step) Status() StepStatus { return s.metrics.Status }

// Duration returns the measured duration, zero before End.
func (s *Step) Duration() time.Duration { return s.metrics.Duration }

// Actions returns the buffered actions.
func (s *Step) Actions() []Action { return s.actions }
