package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates that the request is not allowed in the resource's current state.
var ErrConflict = errors.New("conflicting state")

// ErrUploadFailed indicates that the storage collaborator could not store a document.
var ErrUploadFailed = errors.New("document upload failed")

// ErrAnalysisFailed indicates that a document could not be turned into an extraction result.
var ErrAnalysisFailed = errors.New("document analysis failed")

// ErrSuperseded indicates that an ingestion attempt finished after a newer attempt started.
// Its result is dropped and never reaches the draft.
var ErrSuperseded = errors.New("ingestion attempt superseded")

// AppError carries an HTTP-ish status code together with the wrapped cause.
type AppError struct {
	Code    int
	Message string
	Err     error
}

// NewAppError creates an AppError.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}
