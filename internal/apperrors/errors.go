// Package apperrors provides the typed error taxonomy of the narration engine.
// Every error carries a Code so the orchestrator can tell recoverable
// conditions from those that abort a unit.
package apperrors

import (
	"errors"
	"fmt"
)

// Code categorizes engine errors.
type Code int

// Error codes.
const (
	// CodeUnknown indicates an unspecified error type
	CodeUnknown Code = iota
	// CodeInvalidParameter indicates malformed configuration or arguments
	CodeInvalidParameter
	// CodeCapabilityUnavailable indicates the preferred strategy is missing
	CodeCapabilityUnavailable
	// CodeQualityDegraded indicates the processed clip drifted in loudness
	CodeQualityDegraded
	// CodeEnhancementFailure indicates the post-mix enhancement failed
	CodeEnhancementFailure
	// CodeDurationMismatchFatal indicates a duration drift too large to correct
	CodeDurationMismatchFatal
	// CodeIOFailure indicates a read, write, decode or encode failure
	CodeIOFailure
)

// Sentinels for errors.Is. They match any *Error with the same code.
var (
	ErrInvalidParameter      = &Error{Code: CodeInvalidParameter}
	ErrCapabilityUnavailable = &Error{Code: CodeCapabilityUnavailable}
	ErrQualityDegraded       = &Error{Code: CodeQualityDegraded}
	ErrEnhancementFailure    = &Error{Code: CodeEnhancementFailure}
	ErrDurationMismatchFatal = &Error{Code: CodeDurationMismatchFatal}
	ErrIOFailure             = &Error{Code: CodeIOFailure}
)

// Error is an engine error tagged with a code and the stage that raised it.
type Error struct {
	Code    Code
	Stage   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a bare sentinel (no message) by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" && t.Stage == "" && t.Err == nil {
		return t.Code == e.Code
	}
	return t == e
}

// WithStage records the stage that raised the error.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// Recoverable reports whether the orchestrator absorbs this code as a warning.
func (c Code) Recoverable() bool {
	switch c {
	case CodeCapabilityUnavailable, CodeQualityDegraded, CodeEnhancementFailure:
		return true
	}
	return false
}

// String returns the string representation of the error code.
func (c Code) String() string {
	switch c {
	case CodeInvalidParameter:
		return "invalid_parameter"
	case CodeCapabilityUnavailable:
		return "capability_unavailable"
	case CodeQualityDegraded:
		return "quality_degraded"
	case CodeEnhancementFailure:
		return "enhancement_failure"
	case CodeDurationMismatchFatal:
		return "duration_mismatch_fatal"
	case CodeIOFailure:
		return "io_failure"
	default:
		return "unknown"
	}
}

// CodeOf extracts the code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// InvalidParameter creates a CodeInvalidParameter error.
func InvalidParameter(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParameter, Message: fmt.Sprintf(format, args...)}
}

// CapabilityUnavailable creates a CodeCapabilityUnavailable error.
func CapabilityUnavailable(format string, args ...any) *Error {
	return &Error{Code: CodeCapabilityUnavailable, Message: fmt.Sprintf(format, args...)}
}

// QualityDegraded creates a CodeQualityDegraded error.
func QualityDegraded(format string, args ...any) *Error {
	return &Error{Code: CodeQualityDegraded, Message: fmt.Sprintf(format, args...)}
}

// EnhancementFailure creates a CodeEnhancementFailure error.
func EnhancementFailure(format string, args ...any) *Error {
	return &Error{Code: CodeEnhancementFailure, Message: fmt.Sprintf(format, args...)}
}

// DurationMismatchFatal creates a CodeDurationMismatchFatal error.
func DurationMismatchFatal(format string, args ...any) *Error {
	return &Error{Code: CodeDurationMismatchFatal, Message: fmt.Sprintf(format, args...)}
}

// IOFailure creates a CodeIOFailure error wrapping err.
func IOFailure(err error, format string, args ...any) *Error {
	return &Error{Code: CodeIOFailure, Message: fmt.Sprintf(format, args...), Err: err}
}
