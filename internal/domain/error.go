package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrNotClaimed          = errors.New("task not claimed")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrTransientIO         = errors.New("transient io failure")
	ErrStageTimeout        = errors.New("stage timed out")
	ErrUnsupportedTaskType = errors.New("unsupported task type")
	ErrOperationFailed     = errors.New("operation failed")

	// Storage plumbing errors
	ErrReadDatabaseRow    = errors.New("could not read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// TaskError is a task store failure that survived the privileged retry.
type TaskError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	if e == nil {
		return ""
	}
	if e.TaskID == "" {
		return fmt.Sprintf("task store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("task store %s %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// StageError attributes a pipeline failure to the stage it came from.
type StageError struct {
	Pipeline string
	Stage    string
	TaskID   string
	Err      error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("stage %s (pipeline %s, task %s): %v", e.Stage, e.Pipeline, e.TaskID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TransactionFailure reports a failed aggregate write and whether the
// partial rows were rolled back.
type TransactionFailure struct {
	Err         error
	Compensated bool
}

func (e *TransactionFailure) Error() string {
	if e == nil {
		return ""
	}
	if e.Compensated {
		return fmt.Sprintf("aggregate write failed (compensated): %v", e.Err)
	}
	return fmt.Sprintf("aggregate write failed (compensation incomplete): %v", e.Err)
}

func (e *TransactionFailure) Unwrap() error { return e.Err }

// PublicMessage turns a pipeline error into the text stored on a failed
// task. Raw causes are never included.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	reason := "unexpected error"
	var tf *TransactionFailure
	switch {
	case errors.Is(err, ErrStageTimeout), errors.Is(err, context.DeadlineExceeded):
		reason = "timed out"
	case errors.As(err, &tf):
		reason = "could not save results"
	case errors.Is(err, ErrUnsupportedTaskType):
		reason = "unsupported task type"
	case errors.Is(err, ErrInvalidArgument):
		reason = "invalid input"
	case errors.Is(err, ErrNotFound):
		reason = "referenced record not found"
	case errors.Is(err, ErrTransientIO):
		reason = "upstream service unavailable"
	}

	var se *StageError
	if errors.As(err, &se) {
		return fmt.Sprintf("stage %s failed: %s", se.Stage, reason)
	}
	return "task failed: " + reason
}
