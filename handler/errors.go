package handler

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNilResponse indicates a handler returned nil instead of a Response.
var ErrNilResponse = errors.New("handler returned nil response")

// HTTPError is an error with an HTTP status and a stable machine code.
// JSONError maps it onto the response envelope.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewHTTPError builds an HTTPError.
func NewHTTPError(status int, code, message string) HTTPError {
	return HTTPError{Status: status, Code: code, Message: message}
}

// Convenience constructors for the common API failure modes.

func BadRequest(message string) HTTPError {
	return NewHTTPError(http.StatusBadRequest, "bad_request", message)
}

func Unauthorized(message string) HTTPError {
	return NewHTTPError(http.StatusUnauthorized, "unauthorized", message)
}

func Forbidden(message string) HTTPError {
	return NewHTTPError(http.StatusForbidden, "forbidden", message)
}

func NotFound(message string) HTTPError {
	return NewHTTPError(http.StatusNotFound, "not_found", message)
}
