// Package errors defines the sentinel errors shared across the indexer and the
// lookup service, plus an AppError wrapper that carries an HTTP status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnreadableModule aborts an indexing pass: the bytes are not a module.
	ErrUnreadableModule = errors.New("unreadable module")
	// ErrMalformedEntry marks a single constant-pool entry or attribute that
	// was skipped while the rest of the module was still indexed.
	ErrMalformedEntry = errors.New("malformed module entry")
	// ErrMalformedSignature marks a single descriptor or signature string that
	// was abandoned.
	ErrMalformedSignature = errors.New("malformed signature")
	// ErrIndexInconsistent means the index storage did not hand back a
	// collection for a key it was asked for.
	ErrIndexInconsistent = errors.New("index storage inconsistent")

	ErrEntryNotFound = errors.New("entry not found")
	ErrInvalidQuery  = errors.New("invalid query")
	ErrUnknownIndex  = errors.New("unknown index")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternal      = errors.New("internal error")
	ErrTimeout       = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrUnknownIndex), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnreadableModule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
