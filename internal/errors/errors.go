// Package errors defines the error taxonomy shared by the consolidation engine:
// transient store failures that are retried, data conflicts that are recorded
// and skipped, configuration failures that abort before any mutation, and step
// failures that stop the orchestrator.
package errors

import (
	"errors"
	"fmt"
)

// Aliases so callers only need one errors import.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

var (
	// ErrTransient marks a store failure worth retrying (timeout, reset, leader switch).
	ErrTransient = errors.New("transient store error")

	// ErrConfig marks invalid or incomplete configuration.
	ErrConfig = errors.New("configuration error")

	// ErrAuth marks rejected store credentials.
	ErrAuth = errors.New("store authentication failed")

	// ErrConflict marks cluster members disagreeing on an immutable identifier.
	ErrConflict = errors.New("identifier conflict")

	// ErrInvalidTransition marks an illegal migration state change.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrValidation marks a run whose validation report did not pass.
	ErrValidation = errors.New("validation failed")
)

// TransientError wraps a store error that can be retried.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// NewTransient wraps err as retryable.
func NewTransient(op string, err error) *TransientError {
	return &TransientError{Op: op, Err: err}
}

// ConfigError describes a configuration problem in a named component.
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is implements errors.Is support.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig || (e.Err != nil && errors.Is(e.Err, target))
}

// NewConfigError creates a ConfigError.
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// ConflictError describes a record whose immutable identifier disagrees with
// the canonical entity it was grouped with.
type ConflictError struct {
	RecordKey   string
	CanonicalID string
	Field       string
	Canonical   string
	Incoming    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("record %s conflicts with canonical %s on %s: %q != %q",
		e.RecordKey, e.CanonicalID, e.Field, e.Incoming, e.Canonical)
}

// Is implements errors.Is support.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// StepError reports which orchestrator step failed and how far the run got.
type StepError struct {
	Step      string
	Index     int
	Completed int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s) failed after %d completed step(s): %v", e.Index, e.Step, e.Completed, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsConfig reports whether err is a configuration or authentication failure.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) || errors.Is(err, ErrAuth) }

// IsConflict reports whether err is a data conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
