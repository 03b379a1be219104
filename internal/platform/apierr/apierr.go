package apierr

import (
	"fmt"
	"net/http"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(err error) *Error {
	return New(http.StatusNotFound, "not_found", err)
}

func Validation(err error) *Error {
	return New(http.StatusBadRequest, "validation", err)
}

func Conflict(err error) *Error {
	return New(http.StatusConflict, "conflict", err)
}

func Unavailable(err error) *Error {
	return New(http.StatusServiceUnavailable, "unavailable", err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "internal", err)
}
