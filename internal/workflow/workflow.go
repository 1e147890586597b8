package workflow

import (
	"context"
	"encoding/json"
	"errors"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusErrored  Status = "errored"
)

// ErrUnknownRun is returned by status and result queries for ids the journal
// has never seen.
var ErrUnknownRun = errors.New("unknown workflow run")

// Step is one named, independently retryable unit of a pipeline. Its returned
// value is journaled as JSON before the next step starts.
type Step struct {
	Name    string
	Retries int // re-attempts after the first try
	Run     func(ctx context.Context, run *Run) (any, error)
}

// Pipeline is a named ordered list of steps.
type Pipeline struct {
	Name  string
	Steps []Step
}

// Run carries one execution's parameters and the journaled results of
// completed steps.
type Run struct {
	ID       string
	Pipeline string
	params   map[string]string
	results  map[string]json.RawMessage
}

// Param returns a run parameter ("" when absent).
func (r *Run) Param(key string) string {
	return r.params[key]
}

// Decode unmarshals a completed step's journaled result into v. The boolean
// reports whether the step has a recorded result.
func (r *Run) Decode(step string, v any) (bool, error) {
	raw, ok := r.results[step]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal marks an error as non-retryable: the engine fails the step
// immediately instead of burning the retry budget.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &terminalError{err: err}
}

func isTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}
