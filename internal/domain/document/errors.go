package document

import (
	"context"
	"errors"
)

// ErrorKind classifies render failures for retry and reporting decisions.
type ErrorKind string

const (
	ErrKindTemplateParse ErrorKind = "TEMPLATE_PARSE"
	ErrKindTemplateEval  ErrorKind = "TEMPLATE_EVAL"
	ErrKindPoolTimeout   ErrorKind = "POOL_TIMEOUT"
	ErrKindPoolDisposed  ErrorKind = "POOL_DISPOSED"
	ErrKindRenderLoad    ErrorKind = "RENDER_LOAD"
	ErrKindRenderPDF     ErrorKind = "RENDER_PDF"
	ErrKindCancelled     ErrorKind = "CANCELLED"
	ErrKindIOTemplate    ErrorKind = "IO_TEMPLATE"
	ErrKindIOOutput      ErrorKind = "IO_OUTPUT"
)

// Error is a classified render error
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a classified error
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the error kind from err, or "" when err carries none.
// Bare context cancellation is reported as CANCELLED.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) {
		return ErrKindCancelled
	}
	return ""
}

// IsCancelled reports whether err represents caller cancellation
func IsCancelled(err error) bool {
	return KindOf(err) == ErrKindCancelled
}

// Retryable reports whether a failure of this kind may succeed on a later
// attempt. Unclassified errors are treated as transient.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrKindCancelled, ErrKindPoolDisposed:
		return false
	default:
		return true
	}
}
