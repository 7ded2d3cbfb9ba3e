package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageFormat(t *testing.T) {
	e := New(CategoryForge, "create repository %s", "counter-v1")
	assert.Equal(t, "forge: create repository counter-v1", e.Error())

	wrapped := Wrap(stderrors.New("boom"), CategoryLLM, "code generation failed")
	assert.Equal(t, "llm: code generation failed: boom", wrapped.Error())
}

func TestWrap_PreservesCauseChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, CategoryNetwork, "callback request failed")
	require.ErrorIs(t, err, cause)

	outer := fmt.Errorf("pipeline: %w", err)
	var ce *Error
	require.True(t, stderrors.As(outer, &ce))
	assert.Equal(t, CategoryNetwork, ce.Category)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("repo %s", "x")))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", NotFound("gone"))))
	assert.False(t, IsNotFound(New(CategoryForge, "boom")))
	assert.False(t, IsNotFound(stderrors.New("plain")))
	assert.False(t, IsNotFound(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(New(CategoryValidation, "bad input").AsPermanent()))
	assert.False(t, IsRetryable(NotFound("absent")), "not-found is a signal, never retried")
	assert.True(t, IsRetryable(New(CategoryForge, "server error")))
	assert.True(t, IsRetryable(stderrors.New("unclassified failures are transient")))
	assert.True(t, IsRetryable(fmt.Errorf("wrap: %w", New(CategoryNetwork, "reset"))))
	assert.False(t, IsRetryable(fmt.Errorf("wrap: %w", New(CategoryNotify, "rejected").AsPermanent())))
}
