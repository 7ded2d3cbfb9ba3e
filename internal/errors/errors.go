// Package errors provides classified errors for the build pipeline.
//
// Every failure crossing a component boundary carries a category and a
// retryability flag so the retry executor and the orchestrator can route
// it without string matching. Not-found is modeled as its own category
// because the forge treats absence as a control-flow branch, not a fault.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies an error for routing and logging.
type Category string

const (
	CategoryValidation Category = "validation" // malformed input or generated content
	CategoryConfig     Category = "config"     // process configuration problems
	CategoryAuth       Category = "auth"       // authentication/authorization failures
	CategoryNotFound   Category = "not_found"  // absence used as a signal
	CategoryLLM        Category = "llm"        // generative model service
	CategoryForge      Category = "forge"      // source-hosting API
	CategoryNotify     Category = "notify"     // callback endpoint
	CategoryNetwork    Category = "network"    // transport-level failures
	CategoryInternal   Category = "internal"   // everything else
)

// Error is a classified error with an optional cause.
type Error struct {
	Category  Category
	Message   string
	Cause     error
	Permanent bool // permanent errors must not be retried
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a classified error.
func New(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps a cause with a category and message.
func Wrap(err error, cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...), Cause: err}
}

// AsPermanent marks the error as non-retryable and returns it.
func (e *Error) AsPermanent() *Error {
	e.Permanent = true
	return e
}

// NotFound creates a not-found signal for the given resource. It is
// permanent by construction: retrying a lookup does not create the resource.
func NotFound(format string, args ...any) *Error {
	return &Error{Category: CategoryNotFound, Message: fmt.Sprintf(format, args...), Permanent: true}
}

// IsNotFound reports whether err is (or wraps) a not-found signal.
func IsNotFound(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Category == CategoryNotFound
	}
	return false
}

// IsRetryable classifies an error for the retry executor. Unclassified
// errors are treated as transient: timeouts, connection resets and
// unexpected failures all deserve another attempt. Only errors explicitly
// marked permanent (client-side mistakes, validation failures, not-found
// signals) short-circuit.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ce *Error
	if errors.As(err, &ce) {
		return !ce.Permanent
	}
	return true
}
