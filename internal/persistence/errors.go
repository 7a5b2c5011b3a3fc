package persistence

import (
	"fmt"
	"strings"
)

const (
	CodeMissingIdentifier   = "MISSING_IDENTIFIER"
	CodeGeneratedIdentifier = "GENERATED_IDENTIFIER"
	CodeCascadeFailed       = "CASCADE_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeValidationFailed    = "VALIDATION_FAILED"
)

// Error is a persistence failure tagged with a code. errors.Is matches any
// two Errors with the same code, so the Err* values below work as sentinels.
type Error struct {
	Code    string
	Entity  string
	Message string
	Details []string
	Err     error
}

var (
	ErrMissingIdentifier   = &Error{Code: CodeMissingIdentifier}
	ErrGeneratedIdentifier = &Error{Code: CodeGeneratedIdentifier}
	ErrCascadeFailed       = &Error{Code: CodeCascadeFailed}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrValidation          = &Error{Code: CodeValidationFailed}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(e.Code, "_", " "))
	}
	if e.Entity != "" {
		msg = e.Entity + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func MissingIdentifierError(entity string, err error) *Error {
	return &Error{Code: CodeMissingIdentifier, Entity: entity, Message: "entity has no identifier", Err: err}
}

func GeneratedIdentifierError(entity, reason string) *Error {
	return &Error{Code: CodeGeneratedIdentifier, Entity: entity, Message: reason}
}

func NotFoundError(entity string, id any) *Error {
	return &Error{Code: CodeNotFound, Entity: entity, Message: fmt.Sprintf("no row with id %v", id)}
}

func ValidationError(entity string, details []string) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Entity:  entity,
		Message: "validation failed: " + strings.Join(details, "; "),
		Details: details,
	}
}

func cascadeError(entity, action string, err error) *Error {
	return &Error{Code: CodeCascadeFailed, Entity: entity, Message: action + " rolled back", Err: err}
}
