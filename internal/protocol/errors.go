package protocol

import (
	"errors"
	"fmt"

	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// ErrorCode is the machine-readable failure class of a response
type ErrorCode string

const (
	CodeTripLocked      ErrorCode = "TRIP_LOCKED"
	CodeVersionConflict ErrorCode = "VERSION_CONFLICT"
	CodeUnknownAction   ErrorCode = "UNKNOWN_ACTION"
	CodeAuth            ErrorCode = "AUTH_ERROR"
	CodeValidation      ErrorCode = "VALIDATION"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeInternal        ErrorCode = "INTERNAL"
)

var codeErrors = []struct {
	code ErrorCode
	err  error
}{
	{CodeTripLocked, entity.ErrTripLocked},
	{CodeVersionConflict, entity.ErrVersionConflict},
	{CodeUnknownAction, entity.ErrUnknownAction},
	{CodeAuth, entity.ErrAuth},
	{CodeValidation, entity.ErrValidation},
	{CodeValidation, entity.ErrRevisionNoteRequired},
	{CodeNotFound, entity.ErrNotFound},
	{CodeForbidden, entity.ErrForbidden},
}

// CodeFor classifies err; unknown errors are internal
func CodeFor(err error) ErrorCode {
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}
	return CodeInternal
}

// Failure builds the response for err
func Failure(err error) *Response {
	code := CodeFor(err)
	return &Response{
		Success:   false,
		Error:     err.Error(),
		ErrorCode: code,
		AuthError: code == CodeAuth,
	}
}

// APIError is a failed response surfaced to client callers.
// It matches the domain sentinel of its code under errors.Is.
type APIError struct {
	Code    ErrorCode
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is maps the code back to the domain sentinel
func (e *APIError) Is(target error) bool {
	for _, ce := range codeErrors {
		if ce.code == e.Code && ce.err == target {
			return true
		}
	}
	return false
}

// Err converts a failed response into an error, or nil on success
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	code := r.ErrorCode
	if r.AuthError {
		code = CodeAuth
	}
	msg := r.Error
	if msg == "" {
		msg = "request failed"
	}
	return &APIError{Code: code, Message: msg}
}
