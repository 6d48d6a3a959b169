// Package errors defines the coded errors returned across service
// boundaries and their HTTP rendering.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeBadRequest   = "BAD_REQUEST"
	CodeInternal     = "INTERNAL_ERROR"
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeIntegrity    = "INTEGRITY_ERROR"
)

var (
	ErrNotFound     = NewError(CodeNotFound, "resource not found", http.StatusNotFound)
	ErrValidation   = NewError(CodeValidation, "validation failed", http.StatusBadRequest)
	ErrBadRequest   = NewError(CodeBadRequest, "bad request", http.StatusBadRequest)
	ErrInternal     = NewError(CodeInternal, "internal server error", http.StatusInternalServerError)
	ErrConflict     = NewError(CodeConflict, "resource conflict", http.StatusConflict)
	ErrUnauthorized = NewError(CodeUnauthorized, "unauthorized", http.StatusUnauthorized)
	ErrForbidden    = NewError(CodeForbidden, "forbidden", http.StatusForbidden)
	// ErrIntegrity reports stored state that breaks an ordering or
	// default-filter invariant. Retrying cannot fix it.
	ErrIntegrity = NewError(CodeIntegrity, "data integrity violation", http.StatusInternalServerError)
)

// FatalError is implemented by errors that must not be retried.
type FatalError interface {
	error
	IsFatal() bool
}

// Error is a coded error. Errors with the same Code match under errors.Is,
// so derived errors still match their sentinel.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

// Error prefers the "message" detail over the generic message.
func (e *Error) Error() string {
	msg := e.Message
	if detail, ok := e.Details["message"].(string); ok && detail != "" {
		msg = detail
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// IsFatal reports whether retrying cannot help. A fatal cause wins;
// otherwise client-side codes are fatal.
func (e *Error) IsFatal() bool {
	var fatalErr FatalError
	if e.Cause != nil && errors.As(e.Cause, &fatalErr) {
		return fatalErr.IsFatal()
	}

	switch e.Code {
	case CodeValidation, CodeBadRequest, CodeNotFound, CodeForbidden, CodeUnauthorized, CodeIntegrity:
		return true
	}
	return false
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

// WithDetail returns a copy with key set. The receiver is never modified,
// so sentinels stay shareable.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		err.Details[k] = v
	}
	err.Details[key] = value
	return &err
}

func Wrap(err error, appErr *Error) *Error {
	if err == nil {
		return nil
	}
	return appErr.WithCause(err)
}

func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsIntegrity(err error) bool  { return errors.Is(err, ErrIntegrity) }

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// ToErrorResponse renders err as the API error body. Errors without a code
// are reported as internal and their text is not exposed.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if details := publicDetails(appErr.Details); len(details) > 0 {
		response["details"] = details
	}
	return response
}

func publicDetails(details map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		if k == detailPanic {
			continue
		}
		out[k] = v
	}
	return out
}
