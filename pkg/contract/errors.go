package contract

import (
	"errors"
	"fmt"
)

// ErrorKind classifies tool execution failures. The kind is what ends up in
// ToolExecutionResult.ErrorType; the raw error never crosses the executor
// boundary.
type ErrorKind string

const (
	// ErrTimeout means the wall-clock deadline elapsed before the tool returned.
	ErrTimeout ErrorKind = "timeout"

	// ErrValidation means the request was malformed and was rejected before
	// any execution.
	ErrValidation ErrorKind = "validation"

	// ErrSecurity means an artifact ID or path failed sandbox validation.
	ErrSecurity ErrorKind = "security"

	// ErrTool means the underlying tool function returned an error or panicked.
	ErrTool ErrorKind = "tool"
)

// Error is a classified failure carrying the kind that callers branch on.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a classified error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, defaulting to ErrTool for
// unclassified errors from tool functions.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrTool
}
