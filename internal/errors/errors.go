// Package errors provides structured error types for the hcilog system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryAdapter  ErrorCategory = "ADAPTER"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryBuffer   ErrorCategory = "BUFFER"
	ErrCategorySession  ErrorCategory = "SESSION"
	ErrCategoryRender   ErrorCategory = "RENDER"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Adapter codes
	CodeAdapterUnavailable = "ADAPTER_UNAVAILABLE"
	CodeAdapterTimeout     = "ADAPTER_TIMEOUT"

	// Storage codes
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"

	// Buffer codes
	CodeFlushFailure = "FLUSH_FAILURE"

	// Session codes
	CodeSessionClosed  = "SESSION_CLOSED"
	CodeTrackerNotIdle = "TRACKER_NOT_IDLE"

	// Render codes
	CodeInvalidCanvas = "INVALID_CANVAS"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// HCIError is the structured error type used throughout the system.
type HCIError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *HCIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *HCIError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *HCIError) Is(target error) bool {
	var t *HCIError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new HCIError.
func New(category ErrorCategory, code, message string) *HCIError {
	return &HCIError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new HCIError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *HCIError {
	return &HCIError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *HCIError) WithDetails(details map[string]interface{}) *HCIError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var he *HCIError
	if errors.As(err, &he) {
		return he.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an HCIError.
func GetCategory(err error) ErrorCategory {
	var he *HCIError
	if errors.As(err, &he) {
		return he.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an HCIError.
func GetCode(err error) string {
	var he *HCIError
	if errors.As(err, &he) {
		return he.Code
	}
	return ""
}

// isRetryable determines if an error code may be retried. A transient
// flush failure is retried once before escalating to a storage failure.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryBuffer && code == CodeFlushFailure:
		return true
	case category == ErrCategoryAdapter && code == CodeAdapterTimeout:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewAdapterUnavailable(modality string, cause error) *HCIError {
	return Wrap(ErrCategoryAdapter, CodeAdapterUnavailable,
		fmt.Sprintf("%s capture adapter unavailable", modality), cause)
}

func NewAdapterTimeout(modality string) *HCIError {
	return New(ErrCategoryAdapter, CodeAdapterTimeout,
		fmt.Sprintf("%s capture adapter produced no sample in time", modality))
}

func NewStorageUnavailable(message string, cause error) *HCIError {
	return Wrap(ErrCategoryStorage, CodeStorageUnavailable, message, cause)
}

func NewConstraintViolation(message string, cause error) *HCIError {
	return Wrap(ErrCategoryStorage, CodeConstraintViolation, message, cause)
}

func NewFlushFailure(stream string, cause error) *HCIError {
	return Wrap(ErrCategoryBuffer, CodeFlushFailure,
		fmt.Sprintf("failed to flush %s batch", stream), cause)
}

func NewInternalError(message string, cause error) *HCIError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// IsAdapterUnavailable reports whether the error chain contains an
// adapter-unavailable error.
func IsAdapterUnavailable(err error) bool {
	return GetCode(err) == CodeAdapterUnavailable
}

// IsStorageUnavailable reports whether the error chain contains a
// storage-unavailable error.
func IsStorageUnavailable(err error) bool {
	return GetCode(err) == CodeStorageUnavailable
}

// IsConstraintViolation reports whether the error chain contains a
// constraint-violation error.
func IsConstraintViolation(err error) bool {
	return GetCode(err) == CodeConstraintViolation
}
