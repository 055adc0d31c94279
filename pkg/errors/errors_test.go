package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: fmt.Errorf("loading: %w", ErrNotFound), want: http.StatusNotFound},
		{name: "invalid", err: ErrInvalidInput, want: http.StatusBadRequest},
		{name: "unknown encoding", err: fmt.Errorf("x: %w", ErrUnknownEncoding), want: http.StatusUnprocessableEntity},
		{name: "unrepresentable", err: fmt.Errorf("x: %w", ErrUnrepresentable), want: http.StatusUnprocessableEntity},
		{name: "locked", err: ErrLocked, want: http.StatusConflict},
		{name: "timeout", err: ErrTimeout, want: http.StatusServiceUnavailable},
		{name: "app error wins", err: New(ErrNotFound, http.StatusTeapot, "brewing"), want: http.StatusTeapot},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: nil, want: ExitOK},
		{err: Newf(ErrInvalidInput, http.StatusBadRequest, "missing %s", "path"), want: ExitUsage},
		{err: fmt.Errorf("dict.txt: %w", ErrUnknownEncoding), want: ExitUnknownEncoding},
		{err: fmt.Errorf("dict.txt: %w", ErrNotFound), want: ExitIO},
		{err: fmt.Errorf("write: %w", ErrIO), want: ExitIO},
		{err: errors.New("boom"), want: ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := New(ErrLocked, http.StatusConflict, "held by follower")
	if !errors.Is(err, ErrLocked) {
		t.Errorf("errors.Is(AppError, ErrLocked) = false")
	}
	if err.Error() != "dictionary is locked by another writer: held by follower" {
		t.Errorf("Error() = %q", err.Error())
	}
}
