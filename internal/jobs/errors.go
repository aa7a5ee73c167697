package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookup, result, and cancel operations
// when the job id is not in the table.
var ErrNotFound = errors.New("job not found")

// UnknownKindError indicates a submission for a job kind that was
// never registered. Surfaced synchronously, never retried.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown job type: %s", e.Kind)
}

// ValidationError indicates bad or missing job parameters. Surfaced
// synchronously to the caller, never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ResultNotReadyError is returned when a result is requested for a
// job that has not completed yet.
type ResultNotReadyError struct {
	ID     string
	Status Status
}

func (e *ResultNotReadyError) Error() string {
	return fmt.Sprintf("job %s has no result yet (status %s)", e.ID, e.Status)
}

// InvalidTransitionError reports a state-machine transition that the
// current status does not allow.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("job %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}
