package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHCIError_ErrorFormat(t *testing.T) {
	err := New(ErrCategoryStorage, CodeStorageUnavailable, "database unreachable")
	assert.Equal(t, "[STORAGE:STORAGE_UNAVAILABLE] database unreachable", err.Error())

	wrapped := Wrap(ErrCategoryBuffer, CodeFlushFailure, "batch rejected", stderrors.New("disk full"))
	assert.Equal(t, "[BUFFER:FLUSH_FAILURE] batch rejected: disk full", wrapped.Error())
}

func TestHCIError_UnwrapChain(t *testing.T) {
	cause := stderrors.New("no such device")
	err := NewAdapterUnavailable("emotion", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, IsAdapterUnavailable(err))
	assert.Equal(t, ErrCategoryAdapter, GetCategory(err))
}

func TestHCIError_IsMatchesCategoryAndCode(t *testing.T) {
	a := New(ErrCategoryStorage, CodeConstraintViolation, "bad row")
	b := New(ErrCategoryStorage, CodeConstraintViolation, "different message")
	c := New(ErrCategoryStorage, CodeStorageUnavailable, "bad row")

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestHCIError_WrappedThroughFmt(t *testing.T) {
	inner := NewConstraintViolation("pointer event out of range", nil)
	outer := fmt.Errorf("append batch: %w", inner)

	assert.True(t, IsConstraintViolation(outer))
	assert.Equal(t, CodeConstraintViolation, GetCode(outer))
}

func TestRetryableCodes(t *testing.T) {
	assert.True(t, IsRetryable(NewFlushFailure("pointer", stderrors.New("locked"))))
	assert.True(t, IsRetryable(NewAdapterTimeout("gaze")))
	assert.False(t, IsRetryable(NewStorageUnavailable("gone", nil)))
	assert.False(t, IsRetryable(stderrors.New("plain error")))
}

func TestGetCategoryOnForeignError(t *testing.T) {
	assert.Equal(t, ErrorCategory(""), GetCategory(stderrors.New("nope")))
	assert.Equal(t, "", GetCode(nil))
}
