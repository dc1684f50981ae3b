package performance

import (
	"errors"
	"fmt"
)

// ErrNoSession is returned when a Session is ended before it was started.
var ErrNoSession = errors.New("performance session not started")

// Session brackets one run: Start inserts the run row, End finalizes it with
// failed or success depending on whether the run returned an error.
type Session struct {
	tracker *Tracker
	meta    RunMetadata
	id      string
	started bool
	ended   bool
}

// NewSession prepares a session for the given metadata.
func (t *Tracker) NewSession(meta RunMetadata) *Session {
	return &Session{tracker: t, meta: meta}
}

// Start opens the session on the tracker.
func (s *Session) Start() error {
	if s.started {
		return nil
	}
	id, err := s.tracker.StartSession(s.meta)
	if err != nil {
		return err
	}
	s.id = id
	s.started = true
	return nil
}

// End closes the session. It is safe to call more than once; only the first
// call writes.
func (s *Session) End(runErr error) error {
	if !s.started {
		return ErrNoSession
	}
	if s.ended {
		return nil
	}
	s.ended = true

	status := RunSuccess
	if runErr != nil {
		status = RunFailed
	}
	return s.tracker.EndSession(status)
}

// ID returns the caller-facing session id, empty before Start.
func (s *Session) ID() string { return s.id }

// Metadata returns the run metadata the session was created with.
func (s *Session) Metadata() RunMetadata { return s.meta }

// Step creates a step bound to the session's tracker.
func (s *Session) Step(name string, typ StepType, opts ...StepOption) *Step {
	return s.tracker.Step(name, typ, opts...)
}

// RunSession runs fn inside a session. The session is ended even when fn
// panics; the panic is re-raised afterwards. fn's error is returned as is.
func (t *Tracker) RunSession(meta RunMetadata, fn func(*Session) error) (err error) {
	s := t.NewSession(meta)
	if err := s.Start(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = s.End(fmt.Errorf("panic: %v", r))
			panic(r)
		}
		if endErr := s.End(err); endErr != nil && err == nil {
			err = fmt.Errorf("end session: %w", endErr)
		}
	}()

	return fn(s)
}
