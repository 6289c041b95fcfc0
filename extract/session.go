package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrSessionState is returned when a session operation is called from the
// wrong state.
var ErrSessionState = errors.New("extract: invalid session state")

// SessionState names a point in the extraction session lifecycle.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateExtracting SessionState = "extracting"
	StateValidated  SessionState = "validated"
	StateFailed     SessionState = "failed"
	StateDone       SessionState = "done"
)

// Round records one extraction attempt within a session.
type Round struct {
	Outcome *Outcome
	Err     error
	At      time.Time
}

// Session drives repeated extraction of the same notes as an explicit state
// machine: Idle, Extracting, then Validated or Failed; from either of those
// an operator decision retries or accepts. This replaces recursive
// re-invocation with a bounded, inspectable loop.
type Session struct {
	id     string
	ex     *Extractor
	notes  string
	opts   Options
	state  SessionState
	batch  *ExtractionBatch
	rounds []Round
}

// NewSession prepares an idle session over one block of notes.
func NewSession(ex *Extractor, notes string, opts Options) *Session {
	return &Session{
		id:    uuid.NewString(),
		ex:    ex,
		notes: notes,
		opts:  opts,
		state: StateIdle,
	}
}

// ID returns the session identifier used in the extraction log.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Rounds returns the per-round history, oldest first.
func (s *Session) Rounds() []Round { return s.rounds }

// Batch returns the last validated batch, or nil before one exists.
func (s *Session) Batch() *ExtractionBatch { return s.batch }

// Start runs the first extraction round. Allowed only from Idle.
func (s *Session) Start(ctx context.Context) error {
	if s.state != StateIdle {
		return fmt.Errorf("%w: cannot start from %q", ErrSessionState, s.state)
	}
	return s.run(ctx)
}

// Retry runs another round after a failure, or re-extracts after the
// operator rejects a validated result.
func (s *Session) Retry(ctx context.Context) error {
	if s.state != StateFailed && s.state != StateValidated {
		return fmt.Errorf("%w: cannot retry from %q", ErrSessionState, s.state)
	}
	return s.run(ctx)
}

// Accept finishes the session, keeping the validated batch.
func (s *Session) Accept() (*ExtractionBatch, error) {
	if s.state != StateValidated {
		return nil, fmt.Errorf("%w: cannot accept from %q", ErrSessionState, s.state)
	}
	s.state = StateDone
	return s.batch, nil
}

func (s *Session) run(ctx context.Context) error {
	s.state = StateExtracting
	batch, out, err := s.ex.ExtractBatch(ctx, s.notes, s.opts)
	s.rounds = append(s.rounds, Round{Outcome: out, Err: err, At: time.Now()})

	if err != nil {
		s.state = StateFailed
		slog.Warn("extract: session round failed",
			"session", s.id, "round", len(s.rounds), "error", err)
		return err
	}

	s.batch = batch
	s.state = StateValidated
	slog.Info("extract: session round validated",
		"session", s.id, "round", len(s.rounds))
	return nil
}
