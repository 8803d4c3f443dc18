package weather

import (
	"errors"
	"fmt"
)

// Code is a machine-readable classification of an SDK failure.
type Code string

const (
	// CodeAPIKeyInvalid indicates an empty, rejected, or forbidden API key.
	CodeAPIKeyInvalid Code = "API_KEY_INVALID"

	// CodeCityNotFound indicates the provider does not know the requested city.
	CodeCityNotFound Code = "CITY_NOT_FOUND"

	// CodeUnavailable indicates the provider was rate-limiting or failing
	// server-side and the retry budget is exhausted.
	CodeUnavailable Code = "TEMPORARILY_UNAVAILABLE"

	// CodeNetwork indicates a transport-level failure with the retry budget
	// exhausted.
	CodeNetwork Code = "NETWORK_ERROR"

	// CodeInterrupted indicates the request was cancelled while waiting to
	// retry.
	CodeInterrupted Code = "INTERRUPTED"

	// CodeUnexpectedResponse indicates a provider response the SDK does not
	// classify, including undecodable bodies.
	CodeUnexpectedResponse Code = "UNEXPECTED_RESPONSE"

	// CodeDuplicateInstance indicates a registry create for an API key that
	// already has a live client.
	CodeDuplicateInstance Code = "DUPLICATE_INSTANCE"

	// CodeInvalidConfiguration indicates a construction-time validation
	// failure.
	CodeInvalidConfiguration Code = "INVALID_CONFIGURATION"
)

// transientCodes marks the codes a caller may reasonably retry later.
// Everything else is permanent for the given input.
var transientCodes = map[Code]bool{
	CodeUnavailable: true,
	CodeNetwork:     true,
	CodeInterrupted: true,
}

// Transient reports whether a later identical call could plausibly succeed.
func (c Code) Transient() bool {
	return transientCodes[c]
}

// Error is the structured error returned by every SDK operation.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the given code and formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error that wraps an underlying cause.
func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from an error chain, or "" for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
