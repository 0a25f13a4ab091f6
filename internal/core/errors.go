package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps a formatted cause in the given base error.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Data errors
	ErrNoData        = &Error{Code: "NO_DATA", Message: "no data available"}
	ErrInvalidSeries = &Error{Code: "INVALID_SERIES", Message: "price series invalid"}
	ErrInvalidSignal = &Error{Code: "INVALID_SIGNAL", Message: "signal invalid"}

	// Analysis errors
	ErrAnalysisFailed = &Error{Code: "ANALYSIS_FAILED", Message: "analysis failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// Job and storage errors
	ErrJobNotFound = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}
	ErrStorage     = &Error{Code: "STORAGE_FAILED", Message: "storage operation failed"}
)
