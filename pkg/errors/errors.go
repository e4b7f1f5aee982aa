package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error identifier returned to API clients.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// ledger rule violations
	CodeInsufficientStock       Code = "INSUFFICIENT_STOCK"
	CodeCashRegisterRequired    Code = "CASH_REGISTER_REQUIRED"
	CodeCashRegisterAlreadyOpen Code = "CASH_REGISTER_ALREADY_OPEN"
	CodeCashRegisterNotOpen     Code = "CASH_REGISTER_NOT_OPEN"
)

// Metadata drives how responses render a code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	detailed
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&detailed != 0,
	}
}

var catalogue = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", detailed),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", detailed),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key reused", detailed),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|detailed),

	CodeInsufficientStock:       describe(http.StatusConflict, "insufficient stock", detailed),
	CodeCashRegisterRequired:    describe(http.StatusConflict, "an open cash register is required", detailed),
	CodeCashRegisterAlreadyOpen: describe(http.StatusConflict, "cash register already open", detailed),
	CodeCashRegisterNotOpen:     describe(http.StatusConflict, "cash register is not open", detailed),
}

// MetadataFor falls back to CodeInternal for codes missing from the catalogue.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalogue[code]; ok {
		return meta
	}
	return catalogue[CodeInternal]
}

// Error is a coded error. The message is safe for clients only when the
// code's metadata allows details; the cause never is.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Validation builds a validation error naming the offending field and a
// machine-readable reason.
func Validation(field, reason, message string) *Error {
	return New(CodeValidation, message).WithDetails(map[string]any{
		"field":  field,
		"reason": reason,
	})
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

// WithDetails attaches client-visible details and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
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

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// CodeOf is the code of the outermost *Error, or CodeInternal.
func CodeOf(err error) Code {
	return As(err).Code()
}
