package pipeline

import (
	"errors"
	"fmt"
)

// State is a step of a pipeline run. A run moves through the states in
// declaration order and ends in [StateDone] or [StateFailed].
type State string

const (
	StateReceived    State = "received"
	StateTranscribed State = "transcribed"
	StateImproved    State = "improved"
	StateLinked      State = "linked"
	StatePersisted   State = "persisted"
	StateIndexed     State = "indexed"
	StateArchived    State = "archived"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Sentinel errors identifying the stage a run failed in. A [*StageError]
// matches the sentinel of its stage through errors.Is.
var (
	ErrTranscription = errors.New("pipeline: transcription failed")
	ErrImprovement   = errors.New("pipeline: improvement failed")
	ErrExtraction    = errors.New("pipeline: extraction failed")
	ErrPersistence   = errors.New("pipeline: persistence failed")
	ErrIndex         = errors.New("pipeline: indexing failed")
	ErrArchival      = errors.New("pipeline: archival failed")

	// ErrPartial is matched by the error of a run that completed after some
	// entity mentions could not be recorded.
	ErrPartial = errors.New("pipeline: partial success")

	// ErrEmptyTranscript is the cause of a transcription failure when the
	// provider returned no speech.
	ErrEmptyTranscript = errors.New("pipeline: empty transcript")

	// ErrInvalidRequest is returned by Run before any work starts.
	ErrInvalidRequest = errors.New("pipeline: invalid request")
)

var stageSentinels = map[State]error{
	StateTranscribed: ErrTranscription,
	StateImproved:    ErrImprovement,
	StateLinked:      ErrExtraction,
	StatePersisted:   ErrPersistence,
	StateIndexed:     ErrIndex,
	StateArchived:    ErrArchival,
}

// StageError reports the stage a run stopped in, or for partial runs the
// stage that degraded.
type StageError struct {
	// Stage is the state the run was moving into.
	Stage State

	// Err is the underlying cause.
	Err error

	// Partial is set when the run still reached [StateDone].
	Partial bool
}

func (e *StageError) Error() string {
	if e.Partial {
		return fmt.Sprintf("pipeline: %s (partial): %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error { return e.Err }

// Is matches the stage sentinel and, for partial runs, [ErrPartial].
func (e *StageError) Is(target error) bool {
	if e.Partial && target == ErrPartial {
		return true
	}
	s, ok := stageSentinels[e.Stage]
	return ok && target == s
}
