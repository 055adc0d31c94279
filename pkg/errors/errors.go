// Package errors defines the error taxonomy shared by the CLI and the HTTP
// service, and maps it to HTTP status codes and process exit codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/morphdict/internal/charset"
)

var (
	ErrNotFound        = errors.New("no such file")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnknownEncoding = charset.ErrUnknownEncoding
	ErrUnrepresentable = charset.ErrUnrepresentable
	ErrMalformed       = charset.ErrMalformed
	ErrIO              = errors.New("i/o failure")
	ErrLocked          = errors.New("dictionary is locked by another writer")
	ErrUnavailable     = errors.New("service unavailable")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
)

// Process exit codes used by the CLI.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitUsage           = 2
	ExitUnknownEncoding = 3
	ExitIO              = 4
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
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownEncoding), errors.Is(err, ErrUnrepresentable), errors.Is(err, ErrMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrLocked):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps err to the CLI exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidInput):
		return ExitUsage
	case errors.Is(err, ErrUnknownEncoding):
		return ExitUnknownEncoding
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrIO):
		return ExitIO
	default:
		return ExitFailure
	}
}
