package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAvailable      = errors.New("artifact not available")
	ErrAlreadyClaimed    = errors.New("job already claimed")
	ErrJobRunning        = errors.New("job is running")
	ErrSummaryRecorded   = errors.New("summary already recorded")
)

// ValidationError reports bad submission input. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// PipelineStageError is the terminal failure of one pipeline stage.
type PipelineStageError struct {
	Stage Stage
	Err   error
}

func (e *PipelineStageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *PipelineStageError) Unwrap() error {
	return e.Err
}

// DispatchError means the job could not be handed to the dispatcher.
type DispatchError struct {
	Mode string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch (%s): %v", e.Mode, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
