package errors

import (
	"errors"
	"fmt"
)

// StashError is the structured error type for markstash.
// It provides rich context for error handling, logging, and bookmark
// status reporting.
type StashError struct {
	// Code is the unique error code (e.g., "ERR_301_SOURCE_UNREACHABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *StashError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StashError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with StashError.
func (e *StashError) Is(target error) bool {
	if t, ok := target.(*StashError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *StashError) WithDetail(key, value string) *StashError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new StashError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *StashError {
	return &StashError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a StashError from an existing error.
// The error's message becomes the StashError message.
func Wrap(code string, err error) *StashError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// StorageError creates a metadata-store or index persistence error.
func StorageError(message string, cause error) *StashError {
	return New(ErrCodeStorageFailure, message, cause)
}

// UnreachableError creates a retryable content-source network error.
func UnreachableError(message string, cause error) *StashError {
	return New(ErrCodeSourceUnreachable, message, cause)
}

// UnsupportedError creates a terminal unsupported-content error.
func UnsupportedError(message string, cause error) *StashError {
	return New(ErrCodeUnsupportedContent, message, cause)
}

// EmptyContentError creates an empty-content extraction error.
func EmptyContentError(message string) *StashError {
	return New(ErrCodeEmptyContent, message, nil)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *StashError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *StashError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Walks the error chain so wrapped StashErrors are still recognized.
func IsRetryable(err error) bool {
	var se *StashError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var se *StashError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a StashError anywhere in the chain.
// Returns empty string if no StashError is present.
func GetCode(err error) string {
	var se *StashError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a StashError in the chain.
// Returns empty string if no StashError is present.
func GetCategory(err error) Category {
	var se *StashError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}
