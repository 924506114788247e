package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies a failure for HTTP responses, retries and CLI exit status.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeConfig       Code = "CONFIG_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
	CodeRateLimit    Code = "RATE_LIMITED"
)

// Metadata describes how a Code surfaces outside the process.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExitCode is the process status used by the command line tools.
	ExitCode int
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {http.StatusBadRequest, false, "validation failed", true, 2},
	CodeConfig:       {http.StatusInternalServerError, false, "invalid configuration", true, 78},
	CodeUnauthorized: {http.StatusUnauthorized, false, "authentication required", false, 77},
	CodeForbidden:    {http.StatusForbidden, false, "access denied", false, 77},
	CodeNotFound:     {http.StatusNotFound, false, "resource not found", false, 66},
	CodeConflict:     {http.StatusConflict, false, "conflict detected", false, 65},
	CodeInternal:     {http.StatusInternalServerError, true, "internal server error", false, 70},
	CodeDependency:   {http.StatusServiceUnavailable, true, "dependency unavailable", true, 69},
	CodeRateLimit:    {http.StatusTooManyRequests, true, "rate limit exceeded", false, 75},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// ExitCode maps err to a sysexits style status: 0 for nil, 1 for errors
// that carry no code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	typed := As(err)
	if typed == nil {
		return 1
	}
	return MetadataFor(typed.code).ExitCode
}

// Error is a coded error with an optional cause and public details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets client-visible details in place and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Error renders "CODE: message" followed by ": cause" when wrapped.
func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any typed error in the chain carries code.
func IsCode(err error, code Code) bool {
	for typed := As(err); typed != nil; typed = As(typed.cause) {
		if typed.code == code {
			return true
		}
	}
	return false
}
