package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline stages, in execution order. Every failure is attributed to exactly
// one of these.
const (
	StageCheck   = "check"
	StageTrigger = "trigger"
	StagePoll    = "poll"
	StageSubmit  = "submit"
	StageDone    = "done"
)

var (
	// ErrBuildFailed means Jenkins reported FAILURE or UNSTABLE.
	ErrBuildFailed = errors.New("build failed")

	// ErrBuildAborted means the build was aborted on the Jenkins side.
	ErrBuildAborted = errors.New("build aborted")

	// ErrPollTimeout means the build did not reach a terminal state within the
	// configured maximum wait.
	ErrPollTimeout = errors.New("build polling timed out")

	// ErrQueueTimeout means no executor picked the build up within the
	// configured queue wait.
	ErrQueueTimeout = errors.New("build queue wait timed out")

	// ErrPollExhausted means consecutive status queries kept failing past the
	// transient retry budget.
	ErrPollExhausted = errors.New("poll retries exhausted")

	// ErrSubmissionRejected means the test-execution manager did not accept
	// the submitted plan.
	ErrSubmissionRejected = errors.New("test plan submission rejected")
)

// StageError attributes a pipeline failure to the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
