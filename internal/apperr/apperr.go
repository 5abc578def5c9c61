// Package apperr defines the service error taxonomy: every failure that can
// reach a client carries a stable machine-readable code and an HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error identifier.
type Code string

const (
	CodeAuthRequired       Code = "AUTH_REQUIRED"
	CodeAuthFailed         Code = "AUTH_FAILED"
	CodePathForbidden      Code = "PATH_FORBIDDEN"
	CodeAccessDenied       Code = "ACCESS_DENIED"
	CodeInvalidPath        Code = "INVALID_PATH"
	CodeInvalidRequest     Code = "INVALID_REQUEST"
	CodeImageNotFound      Code = "IMAGE_NOT_FOUND"
	CodeBatchNotFound      Code = "BATCH_NOT_FOUND"
	CodeFileTooLarge       Code = "FILE_TOO_LARGE"
	CodeInvalidFileType    Code = "INVALID_FILE_TYPE"
	CodeInvalidFileContent Code = "INVALID_FILE_CONTENT"
	CodeBatchTooLarge      Code = "BATCH_TOO_LARGE"
	CodeInvalidDimensions  Code = "INVALID_DIMENSIONS"
	CodeInvalidQuality     Code = "INVALID_QUALITY"
	CodeInvalidFormat      Code = "INVALID_FORMAT"
	CodeInvalidMode        Code = "INVALID_MODE"
	CodeDuplicateUUID      Code = "DUPLICATE_UUID"
	CodeStorageError       Code = "STORAGE_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// statusByCode maps every code to the HTTP status it is served with.
var statusByCode = map[Code]int{
	CodeAuthRequired:       http.StatusUnauthorized,
	CodeAuthFailed:         http.StatusUnauthorized,
	CodePathForbidden:      http.StatusForbidden,
	CodeAccessDenied:       http.StatusForbidden,
	CodeInvalidPath:        http.StatusBadRequest,
	CodeInvalidRequest:     http.StatusBadRequest,
	CodeImageNotFound:      http.StatusNotFound,
	CodeBatchNotFound:      http.StatusNotFound,
	CodeFileTooLarge:       http.StatusRequestEntityTooLarge,
	CodeInvalidFileType:    http.StatusBadRequest,
	CodeInvalidFileContent: http.StatusBadRequest,
	CodeBatchTooLarge:      http.StatusBadRequest,
	CodeInvalidDimensions:  http.StatusBadRequest,
	CodeInvalidQuality:     http.StatusBadRequest,
	CodeInvalidFormat:      http.StatusBadRequest,
	CodeInvalidMode:        http.StatusBadRequest,
	CodeDuplicateUUID:      http.StatusInternalServerError,
	CodeStorageError:       http.StatusInternalServerError,
	CodeInternal:           http.StatusInternalServerError,
}

// Error is a taxonomy error. It wraps an optional cause which stays
// internal; only Code, Message and Details are ever serialized.
type Error struct {
	Code    Code
	Message string
	Details map[string]any

	cause error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that records err as its internal cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetail attaches a key/value pair exposed to clients alongside the code.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the HTTP status for the error's code.
func (e *Error) Status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// From extracts an *Error from err's chain, or nil if there is none.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if e := From(err); e != nil {
		return e.Code == code
	}
	return false
}
