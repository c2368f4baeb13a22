// Unified error handling for the flux tracer host
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Data errors: the timeline handed to the writer is broken. Fatal to
	// the track, never retried blindly (upstream decoder bug).
	ErrDataTimeline   ErrorCode = "DATA_TIMELINE"
	ErrDataRevolution ErrorCode = "DATA_REVOLUTION"

	// Timing/hardware errors: recoverable by retrying the whole
	// write+verify cycle up to a bounded count.
	ErrHWOverrun      ErrorCode = "HW_CAPTURE_OVERRUN"
	ErrHWUnderrun     ErrorCode = "HW_WRITE_UNDERRUN"
	ErrHWNoIndex      ErrorCode = "HW_NO_INDEX"
	ErrHWNoData       ErrorCode = "HW_NO_DATA"
	ErrHWWriteProtect ErrorCode = "HW_WRITE_PROTECTED"

	// Verification failures: reported with full diagnostics, retried only
	// a small fixed number of times.
	ErrVerifyNoCorrelation ErrorCode = "VERIFY_NO_CORRELATION"
	ErrVerifyMismatch      ErrorCode = "VERIFY_MISMATCH"

	// Runtime errors
	ErrRuntime     ErrorCode = "RUNTIME"
	ErrRuntimeInit ErrorCode = "RUNTIME_INIT"

	// Configuration errors
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
)

// TraceError is the unified error type for the host system
type TraceError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Cylinder/Head locate the track the error belongs to (-1 if unset)
	Cylinder int
	Head     int

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TraceError) Error() string {
	if e.Cylinder >= 0 {
		return fmt.Sprintf("[%s] cyl %d head %d: %s", e.Code, e.Cylinder, e.Head, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TraceError) Unwrap() error {
	return e.Err
}

// SetTrack sets the track position the error belongs to
func (e *TraceError) SetTrack(cylinder, head int) *TraceError {
	e.Cylinder = cylinder
	e.Head = head
	return e
}

// SetContext adds additional context
func (e *TraceError) SetContext(key string, value interface{}) *TraceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new TraceError
func New(code ErrorCode, message string) *TraceError {
	return &TraceError{
		Code:     code,
		Message:  message,
		Cylinder: -1,
		Head:     -1,
	}
}

// Newf creates a new TraceError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *TraceError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *TraceError {
	e := New(code, message)
	e.Err = err
	return e
}

// Data errors

// TimelineError creates an error for a malformed flux timeline
func TimelineError(err error) *TraceError {
	return Wrap(err, ErrDataTimeline, "malformed flux timeline")
}

// RevolutionError creates an error for a timeline/revolution length mismatch
func RevolutionError(err error) *TraceError {
	return Wrap(err, ErrDataRevolution, "timeline does not fit one revolution")
}

// Hardware errors

// OverrunError creates an error for a capture buffer overrun
func OverrunError(captured int) *TraceError {
	return Newf(ErrHWOverrun, "capture ring overrun after %d pulses", captured).
		SetContext("captured", captured)
}

// UnderrunError creates an error for pulse generation buffer starvation
func UnderrunError(emitted int) *TraceError {
	return Newf(ErrHWUnderrun, "pulse emission underrun after %d pulses", emitted).
		SetContext("emitted", emitted)
}

// NoIndexError creates an error for a missing index pulse
func NoIndexError() *TraceError {
	return New(ErrHWNoIndex, "no index pulse, drive not responding")
}

// NoDataError creates an error for a stalled flux capture
func NoDataError() *TraceError {
	return New(ErrHWNoData, "no incoming flux data, drive not responding")
}

// WriteProtectError creates an error for a write protected disk
func WriteProtectError() *TraceError {
	return New(ErrHWWriteProtect, "disk is write protected")
}

// Verification failures

// NoCorrelationError creates an error for a failed alignment search
func NoCorrelationError(searched int) *TraceError {
	return Newf(ErrVerifyNoCorrelation, "no unambiguous correlation within %d offsets", searched).
		SetContext("searched", searched)
}

// MismatchError creates an error for an out-of-tolerance readback
func MismatchError(expected, got, compared int) *TraceError {
	return Newf(ErrVerifyMismatch, "readback %d != expected %d after %d matching pulses",
		got, expected, compared).
		SetContext("compared", compared)
}

// Runtime errors

// RuntimeError creates a general runtime error
func RuntimeError(message string) *TraceError {
	return New(ErrRuntime, message)
}

// RuntimeErrorInit creates an error for initialization failure
func RuntimeErrorInit(component string, reason string) *TraceError {
	return Newf(ErrRuntimeInit, "failed to initialize %s: %s", component, reason)
}

// RecoverPanic safely recovers from panic and converts to error
func RecoverPanic() *TraceError {
	if r := recover(); r != nil {
		switch x := r.(type) {
		case string:
			return RuntimeError(fmt.Sprintf("panic: %s", x))
		case runtime.Error:
			return RuntimeError(x.Error())
		case error:
			return RuntimeError(x.Error())
		default:
			return RuntimeError(fmt.Sprintf("panic: %v", x))
		}
	}
	return nil
}

// Is checks if error matches given error code
func Is(err error, code ErrorCode) bool {
	if traceErr, ok := err.(*TraceError); ok {
		return traceErr.Code == code
	}
	return false
}

// Code extracts the error code, or ErrRuntime for foreign errors
func Code(err error) ErrorCode {
	if traceErr, ok := err.(*TraceError); ok {
		return traceErr.Code
	}
	return ErrRuntime
}

// IsData checks if error is a data error (fatal to the track, no retry)
func IsData(err error) bool {
	return Is(err, ErrDataTimeline) || Is(err, ErrDataRevolution)
}

// IsHardware checks if error is a timing/hardware error (cycle is retried)
func IsHardware(err error) bool {
	return Is(err, ErrHWOverrun) ||
		Is(err, ErrHWUnderrun) ||
		Is(err, ErrHWNoIndex) ||
		Is(err, ErrHWNoData) ||
		Is(err, ErrHWWriteProtect)
}

// IsVerify checks if error is a verification failure (bounded retries)
func IsVerify(err error) bool {
	return Is(err, ErrVerifyNoCorrelation) || Is(err, ErrVerifyMismatch)
}

// Retryable reports whether the write+verify cycle may be retried after err.
// Write protection and data errors are final.
func Retryable(err error) bool {
	if Is(err, ErrHWWriteProtect) {
		return false
	}
	return IsHardware(err) || IsVerify(err)
}
