// Package domainerr provides severity-aware error types for the
// forecasting core.
package domainerr

import (
	"errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a structured error with a stable code.
type Error struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Recoverable bool     `json:"recoverable"`
	cause       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Error codes
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeInvalidObservation  = "INVALID_OBSERVATION"
	ErrCodeInvalidOverride     = "INVALID_OVERRIDE"
	ErrCodeInsufficientHistory = "INSUFFICIENT_HISTORY"
	ErrCodeUnknownSeries       = "UNKNOWN_SERIES"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
)

// NewInvalidRequest creates an error for malformed request parameters.
func NewInvalidRequest(reason string) *Error {
	return &Error{
		Code:        ErrCodeInvalidRequest,
		Message:     reason,
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewInvalidObservation creates an error for an observation that
// violates a domain constraint (future date, negative demand).
func NewInvalidObservation(reason string) *Error {
	return &Error{
		Code:        ErrCodeInvalidObservation,
		Message:     reason,
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewInvalidOverride creates an error for an override that violates a
// domain constraint (past date, negative value).
func NewInvalidOverride(reason string) *Error {
	return &Error{
		Code:        ErrCodeInvalidOverride,
		Message:     reason,
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// NewInsufficientHistory creates an error for a series with too few
// observations to train a model. Callers fall back to the baseline.
func NewInsufficientHistory(points, minimum int) *Error {
	return &Error{
		Code:        ErrCodeInsufficientHistory,
		Message:     fmt.Sprintf("series has %d observations, need at least %d", points, minimum),
		Severity:    SeverityInfo,
		Recoverable: true,
	}
}

// NewUnknownSeries creates an error for a (property, role) key with no
// recorded data at all.
func NewUnknownSeries(key string) *Error {
	return &Error{
		Code:        ErrCodeUnknownSeries,
		Message:     fmt.Sprintf("no demand history for %s", key),
		Severity:    SeverityWarning,
		Recoverable: false,
	}
}

// NewStoreUnavailable wraps a transient storage failure.
func NewStoreUnavailable(op string, cause error) *Error {
	return &Error{
		Code:        ErrCodeStoreUnavailable,
		Message:     fmt.Sprintf("%s: %v", op, cause),
		Severity:    SeverityError,
		Recoverable: true,
		cause:       cause,
	}
}

// HasCode reports whether err (or anything it wraps) carries the given
// domain error code.
func HasCode(err error, code string) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}

// CodeOf returns the domain code carried by err, or "" if none.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
