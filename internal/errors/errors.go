package errors

import (
	"fmt"
)

// LecternError is the structured error type for Lectern.
// It carries a code, category and severity so callers can log or present
// failures without string matching.
type LecternError struct {
	// Code is the unique error code (e.g., "ERR_402_DIMENSION_MISMATCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *LecternError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *LecternError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with LecternError.
func (e *LecternError) Is(target error) bool {
	if t, ok := target.(*LecternError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *LecternError) WithDetail(key, value string) *LecternError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new LecternError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *LecternError {
	return &LecternError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Newf creates a new LecternError with a formatted message.
func Newf(code string, format string, args ...any) *LecternError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a LecternError from an existing error.
// The error's message becomes the LecternError message.
func Wrap(code string, err error) *LecternError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// CountMismatch reports a chunk/embedding count precondition violation.
func CountMismatch(chunks, embeddings int) *LecternError {
	return Newf(ErrCodeCountMismatch,
		"chunk count %d does not match embedding count %d", chunks, embeddings)
}

// DimensionMismatch reports an embedding dimension precondition violation.
func DimensionMismatch(expected, got int) *LecternError {
	return Newf(ErrCodeDimensionMismatch,
		"dimension mismatch: expected %d, got %d", expected, got)
}

// IndexNotFound reports that no persisted index exists for a book.
func IndexNotFound(bookID string) *LecternError {
	return Newf(ErrCodeIndexNotFound, "no index found for book %q", bookID).
		WithDetail("book_id", bookID)
}

// StorageError creates a storage-related error (I/O, encode, decode).
func StorageError(message string, cause error) *LecternError {
	return New(ErrCodeStorage, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *LecternError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// GetCode extracts the error code from a LecternError.
// Returns empty string if not a LecternError.
func GetCode(err error) string {
	if le, ok := err.(*LecternError); ok {
		return le.Code
	}
	return ""
}

// IsCode reports whether err is a LecternError carrying the given code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}
