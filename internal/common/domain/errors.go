package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error code surfaced to API clients.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeNotAuthorized        Code = "NOT_AUTHORIZED"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeMissingRequiredField Code = "MISSING_REQUIRED_FIELD"
	CodeConflict             Code = "CONFLICT"
	CodeValidation           Code = "VALIDATION_ERROR"
	CodeTimeout              Code = "TIMEOUT"
	CodeInternal             Code = "INTERNAL_ERROR"
)

// Error is a typed domain error carrying a code and a client-safe message.
type Error struct {
	Code    Code
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is a domain error with the same code, so callers can
// match with errors.Is(err, domain.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrNotAuthorized        = &Error{Code: CodeNotAuthorized}
	ErrInvalidTransition    = &Error{Code: CodeInvalidTransition}
	ErrMissingRequiredField = &Error{Code: CodeMissingRequiredField}
	ErrConflict             = &Error{Code: CodeConflict}
	ErrValidation           = &Error{Code: CodeValidation}
	ErrTimeout              = &Error{Code: CodeTimeout}
)

// NewNotFoundError reports that the named entity does not exist.
func NewNotFoundError(entity, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewNotAuthorizedError reports that the actor has no standing for the operation.
func NewNotAuthorizedError(message string) *Error {
	return &Error{Code: CodeNotAuthorized, Message: message}
}

// NewInvalidStateError reports an action that is not valid from the current state.
func NewInvalidStateError(current, action string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot %s a booking in status %s", action, current),
	}
}

// NewMissingFieldError reports a required input that was absent or empty.
func NewMissingFieldError(field string) *Error {
	return &Error{Code: CodeMissingRequiredField, Message: fmt.Sprintf("%s is required", field)}
}

// NewConflictError reports a lost compare-and-swap race.
func NewConflictError(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// NewValidationError reports malformed input.
func NewValidationError(message string) *Error {
	return &Error{Code: CodeValidation, Message: message}
}

// NewTimeoutError reports that the operation ran out of time before committing.
func NewTimeoutError(message string) *Error {
	return &Error{Code: CodeTimeout, Message: message}
}

// CodeOf extracts the domain code from err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
