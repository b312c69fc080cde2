// Package errs defines the error taxonomy shared by the transcription,
// summarization and storage stages.
//
// Provider-level errors are converted into fallback decisions by the
// orchestrators and never leave them. Storage errors are the one category
// that is reported to the lifecycle caller.
package errs

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	CodePermissionDenied      Code = "PERMISSION_DENIED"
	CodeUnavailable           Code = "PROVIDER_UNAVAILABLE"
	CodeTimeout               Code = "PROVIDER_TIMEOUT"
	CodeRejected              Code = "PROVIDER_REJECTED"
	CodeMalformedResponse     Code = "MALFORMED_RESPONSE"
	CodeMalformedAudio        Code = "MALFORMED_AUDIO"
	CodeEmptyInput            Code = "EMPTY_INPUT"
	CodeGenerativeUnavailable Code = "GENERATIVE_SUMMARY_UNAVAILABLE"
	CodeStorage               Code = "STORAGE_FAILED"
)

var retryableCodes = map[Code]bool{
	CodeUnavailable: true,
	CodeTimeout:     true,
	CodeStorage:     true,
}

// Sentinels usable with errors.Is. Matching is by code only.
var (
	ErrPermissionDenied      = &Error{Code: CodePermissionDenied}
	ErrUnavailable           = &Error{Code: CodeUnavailable}
	ErrTimeout               = &Error{Code: CodeTimeout}
	ErrRejected              = &Error{Code: CodeRejected}
	ErrMalformedResponse     = &Error{Code: CodeMalformedResponse}
	ErrMalformedAudio        = &Error{Code: CodeMalformedAudio}
	ErrEmptyInput            = &Error{Code: CodeEmptyInput}
	ErrGenerativeUnavailable = &Error{Code: CodeGenerativeUnavailable}
	ErrStorage               = &Error{Code: CodeStorage}
)

// Error is the pipeline error type.
type Error struct {
	Code     Code
	Message  string
	Provider string
	// Status carries the backend status for rejected requests (HTTP-style).
	Status int
	Cause  error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s(%d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (cause: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause and returns the receiver.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// PermissionDenied reports missing microphone, speech or API permissions.
func PermissionDenied(provider, message string) *Error {
	return &Error{Code: CodePermissionDenied, Provider: provider, Message: message}
}

// Unavailable reports a backend that cannot be used right now, including
// one whose credentials are absent or invalid.
func Unavailable(provider, message string) *Error {
	return &Error{Code: CodeUnavailable, Provider: provider, Message: message}
}

// Timeout reports a backend call that lost its timeout race.
func Timeout(provider string) *Error {
	return &Error{Code: CodeTimeout, Provider: provider, Message: "request timed out"}
}

// Rejected reports a request refused by the backend with the given status.
func Rejected(provider string, status int, message string) *Error {
	return &Error{Code: CodeRejected, Provider: provider, Status: status, Message: message}
}

// MalformedResponse reports a backend answer that could not be decoded.
func MalformedResponse(provider, message string) *Error {
	return &Error{Code: CodeMalformedResponse, Provider: provider, Message: message}
}

// MalformedAudio reports a payload whose header does not describe its data.
func MalformedAudio(message string) *Error {
	return &Error{Code: CodeMalformedAudio, Message: message}
}

// EmptyInput reports an input with nothing to process.
func EmptyInput(message string) *Error {
	return &Error{Code: CodeEmptyInput, Message: message}
}

// GenerativeUnavailable reports a generative summary that could not be produced.
func GenerativeUnavailable(backend, message string) *Error {
	return &Error{Code: CodeGenerativeUnavailable, Provider: backend, Message: message}
}

// StorageFailed wraps a storage collaborator failure.
func StorageFailed(backend string, cause error) *Error {
	return &Error{Code: CodeStorage, Provider: backend, Message: "record handoff failed", Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err carries a code worth retrying.
func IsRetryable(err error) bool {
	return retryableCodes[CodeOf(err)]
}
