// Package errors provides structured error types for the Veltab engine.
// All errors include a category, code, and message for consistent handling
// across the table algebra, the SQL front end, and backends.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the engine's error taxonomy.
type ErrorCategory string

const (
	// ErrCategoryValidation covers query construction errors: unknown
	// columns, scalar type mismatches, unbound predicate parameters.
	// These are programming errors, raised at the call that introduced
	// them and never deferred to iteration.
	ErrCategoryValidation ErrorCategory = "VALIDATION"

	// ErrCategoryQuery covers errors in the SQL entry points: parse
	// failures, unknown tables, refused mutations.
	ErrCategoryQuery ErrorCategory = "QUERY"

	// ErrCategoryBackend covers I/O failures surfaced unchanged from a
	// backend's row stream or mutation functions.
	ErrCategoryBackend ErrorCategory = "BACKEND"

	// ErrCategoryInternal covers unexpected engine failures.
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeUnknownColumn = "UNKNOWN_COLUMN"
	CodeTypeMismatch  = "TYPE_MISMATCH"
	CodeUnboundParam  = "UNBOUND_PARAM"
	CodeInvalidSchema = "INVALID_SCHEMA"

	// Query codes
	CodeParseError         = "PARSE_ERROR"
	CodeUnsupportedSyntax  = "UNSUPPORTED_SYNTAX"
	CodeTableNotFound      = "TABLE_NOT_FOUND"
	CodeUnfilteredMutation = "UNFILTERED_MUTATION"
	CodeParamCount         = "PARAM_COUNT"

	// Backend codes
	CodeMutationNotSupported = "MUTATION_NOT_SUPPORTED"
	CodeScanFailed           = "SCAN_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// EngineError is the structured error type used throughout the engine.
type EngineError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new EngineError.
func New(category ErrorCategory, code, message string) *EngineError {
	return &EngineError{Category: category, Code: code, Message: message}
}

// Newf creates a new EngineError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *EngineError {
	return &EngineError{Category: category, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new EngineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *EngineError {
	return &EngineError{Category: category, Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of the error with additional details.
func (e *EngineError) WithDetails(details map[string]interface{}) *EngineError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCategory(err error) ErrorCategory {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an EngineError.
func GetCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewValidationError(code, format string, args ...interface{}) *EngineError {
	return Newf(ErrCategoryValidation, code, format, args...)
}

func NewQueryError(code, format string, args ...interface{}) *EngineError {
	return Newf(ErrCategoryQuery, code, format, args...)
}

func NewBackendError(code, message string, cause error) *EngineError {
	return Wrap(ErrCategoryBackend, code, message, cause)
}

func NewInternalError(message string, cause error) *EngineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
