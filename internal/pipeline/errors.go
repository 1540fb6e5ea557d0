package pipeline

import (
	"errors"
	"fmt"
)

// ErrDuplicateRun is returned by run creation when the run identifier
// already exists. Not retried; the caller picks a new identifier.
var ErrDuplicateRun = errors.New("run identifier already exists")

// ErrNoRun is returned when an operation needs a run and none exists yet.
var ErrNoRun = errors.New("no pipeline runs found")

// ErrGateNotReady is returned by approval when the stage's current status is
// not awaiting_approval. It is an ordinary precondition failure, never fatal.
var ErrGateNotReady = errors.New("stage is not awaiting approval")

// ErrStageRunning is returned when a stage is started while its most recent
// attempt is still running. The check is best-effort (two racing starts can
// both pass it) but closes the common duplicate-submission path of a retried
// request racing an in-flight attempt.
var ErrStageRunning = errors.New("stage already has a running attempt")

// PrerequisiteError names the blocking stage and its actual status when a
// stage is attempted before its prerequisite is completed or approved.
type PrerequisiteError struct {
	Stage        int
	Prerequisite int
	Status       Status
}

func (e *PrerequisiteError) Error() string {
	return fmt.Sprintf("stage %d prerequisite not satisfied: stage %d status is %q, want completed or approved",
		e.Stage, e.Prerequisite, e.Status.String())
}

// StageLogicError wraps an error raised inside a stage's business logic.
// The orchestrator records it via failStage before re-raising it.
type StageLogicError struct {
	Stage int
	Err   error
}

func (e *StageLogicError) Error() string {
	return fmt.Sprintf("stage %d failed: %v", e.Stage, e.Err)
}

func (e *StageLogicError) Unwrap() error { return e.Err }
