package session

import "errors"

type ErrorCode string

const (
	// ErrorCodeTransient marks remote I/O failures. Retry-eligible; local
	// state is never corrupted by one.
	ErrorCodeTransient ErrorCode = "transient_io"
	// ErrorCodeValidation marks caller mistakes: empty send, send after
	// close. Surfaced, never retried.
	ErrorCodeValidation ErrorCode = "validation_error"
	// ErrorCodeStale marks results from a superseded session or link epoch.
	// Discarded silently by the components that see them; the code exists so
	// tests can assert the classification.
	ErrorCodeStale ErrorCode = "stale_result"
	// ErrorCodeDuplicate marks events absorbed by dedup. Never surfaced.
	ErrorCodeDuplicate ErrorCode = "duplicate_event"
	ErrorCodeNotFound  ErrorCode = "not_found"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError is used by the other sync components so the whole engine shares
// one failure taxonomy.
func NewError(code ErrorCode, message string, err error) *Error {
	return newError(code, message, err)
}

// CodeOf classifies an arbitrary error; unclassified errors count as
// transient I/O, which keeps unknown remote failures retryable instead of
// fatal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrorCodeTransient
}
