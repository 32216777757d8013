// Package domainerrors defines the error type returned by services.
//
// Every error carries a machine-readable Code. Codes belong to one of three kinds:
//   - validation: malformed or inconsistent input, rejected before any read or write
//   - business: a domain rule rejected the request after reading state, before writing
//   - technical: infrastructure failed; the whole unit of work was aborted and may be retried
//
// A Reason can be attached for finer-grained, stable identifiers such as
// "InvalidReductionAmount" that clients can switch on.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeInvariantViolation Code = "invariant_violation"

	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeBusinessRule Code = "business_rule_violation"

	CodeInternal    Code = "internal_error"
	CodeTimeout     Code = "timeout"
	CodeUnavailable Code = "unavailable"
)

// Kind groups codes into the error taxonomy used by callers to decide on retries.
type Kind string

const (
	KindValidation Kind = "validation"
	KindBusiness   Kind = "business"
	KindTechnical  Kind = "technical"
)

// Kind returns the taxonomy bucket of the code. Unknown codes are technical.
func (c Code) Kind() Kind {
	switch c {
	case CodeValidation, CodeBadRequest, CodeInvalidInput, CodeInvariantViolation:
		return KindValidation
	case CodeNotFound, CodeConflict, CodeBusinessRule:
		return KindBusiness
	default:
		return KindTechnical
	}
}

// Retryable reports whether a caller may safely retry an operation that failed with this code.
func (c Code) Retryable() bool {
	return c.Kind() == KindTechnical
}

// Error is a domain error with a code, an optional reason and an optional cause.
type Error struct {
	Code    Code
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// WithReason creates an error with a code and a stable reason identifier.
func WithReason(code Code, reason, msg string) error {
	return &Error{Code: code, Reason: reason, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping nil returns nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether any error in the chain is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for err != nil {
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.Err
			continue
		}
		return false
	}
	return false
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ReasonOf returns the first non-empty reason in the chain.
func ReasonOf(err error) string {
	var de *Error
	for err != nil {
		if !errors.As(err, &de) {
			return ""
		}
		if de.Reason != "" {
			return de.Reason
		}
		err = de.Err
	}
	return ""
}

// KindOf returns the taxonomy bucket for err.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}
