package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

const (
	ErrCodeQueueOverflow     ErrorCode = "QUEUE_OVERFLOW"
	ErrCodeCapacityBreach    ErrorCode = "CAPACITY_BREACH"
	ErrCodeProcessingFailure ErrorCode = "PROCESSING_FAILURE"
	ErrCodeContextNotReady   ErrorCode = "CONTEXT_NOT_READY"
	ErrCodeRouterClosed      ErrorCode = "ROUTER_CLOSED"
	ErrCodeInvalidEvent      ErrorCode = "INVALID_EVENT"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ErrClosed is returned by lifecycle-owning components after Stop.
var ErrClosed = errors.New("component is closed")

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	StreamID string    `json:"stream_id,omitempty"`
	Cause    error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithStream tags the error with the stream it belongs to.
func (e *Error) WithStream(streamID string) *Error {
	e.StreamID = streamID
	return e
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal when err is not
// a *types.Error.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ErrCodeInternal
}
