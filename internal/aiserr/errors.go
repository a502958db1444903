// Package aiserr defines the typed error hierarchy the control surface
// uses to pick an HTTP status code without string-sniffing error messages.
package aiserr

import (
	"errors"
	"net/http"
)

// Error is the base application error. Status carries the HTTP status
// code the control surface should respond with when this error escapes to
// a handler.
type Error struct {
	Message string
	Status  int
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// New returns a base Error with an arbitrary status code.
func New(message string, status int, details map[string]any) *Error {
	return &Error{Message: message, Status: status, Details: details}
}

// Validation reports a 400 input-validation failure.
func Validation(message string, details map[string]any) *Error {
	return New(message, http.StatusBadRequest, details)
}

// NotFound reports a 404 missing-resource failure.
func NotFound(message string, details map[string]any) *Error {
	return New(message, http.StatusNotFound, details)
}

// Conflict reports a 409 state-conflict failure, used for "replay already
// running" and similar single-writer violations.
func Conflict(message string, details map[string]any) *Error {
	return New(message, http.StatusConflict, details)
}

// Database reports a 500 persistence failure.
func Database(message string, details map[string]any) *Error {
	return New(message, http.StatusInternalServerError, details)
}

// StatusOf returns the HTTP status code for err, defaulting to 500 for
// errors that are not an *Error.
func StatusOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
