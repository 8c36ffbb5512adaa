package platform

import "errors"

// ErrorClass tags an adapter error per spec §4.4's taxonomy, so the
// Orchestrator can decide whether to retry without inspecting adapter
// internals.
type ErrorClass string

const (
	ClassAuthentication ErrorClass = "authentication"
	ClassValidation     ErrorClass = "validation"
	ClassRateLimit      ErrorClass = "rate_limit"
	ClassNetwork        ErrorClass = "network"
	ClassPosting        ErrorClass = "posting"
)

// Transient reports whether the Orchestrator should retry an error of
// this class (spec §4.4: rate_limit and network are transient by
// default; posting, authentication and validation are never retried).
func (c ErrorClass) Transient() bool {
	switch c {
	case ClassRateLimit, ClassNetwork:
		return true
	default:
		return false
	}
}

// Error is the concrete error type adapters return. Wrap the underlying
// cause with Err* constructors so callers can use errors.As/errors.Is.
type Error struct {
	Class   ErrorClass
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(class ErrorClass, message string, cause error) *Error {
	return &Error{Class: class, Message: message, Cause: cause}
}

func ErrAuthentication(message string, cause error) error { return newErr(ClassAuthentication, message, cause) }
func ErrValidation(message string, cause error) error     { return newErr(ClassValidation, message, cause) }
func ErrRateLimit(message string, cause error) error      { return newErr(ClassRateLimit, message, cause) }
func ErrNetwork(message string, cause error) error        { return newErr(ClassNetwork, message, cause) }
func ErrPosting(message string, cause error) error        { return newErr(ClassPosting, message, cause) }

// ClassOf extracts the ErrorClass from err, if it (or something it wraps)
// is a *Error. ok is false for errors not produced by an adapter.
func ClassOf(err error) (ErrorClass, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class, true
	}
	return "", false
}
