package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("failed to complete message: %w", ErrLockLost)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "validation", err: ErrValidation, want: "validation"},
		{name: "connection", err: ErrConnection, want: "connection"},
		{name: "malformed", err: ErrMalformedPayload, want: "malformed_payload"},
		{name: "lock_lost_wrapped", err: wrapped, want: "lock_lost"},
		{name: "state", err: ErrState, want: "state"},
		{name: "deadline", err: context.DeadlineExceeded, want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "unknown", err: errors.New("unknown"), want: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Kind(tt.err); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "validation", err: fmt.Errorf("%w: customer name is required", ErrValidation), want: http.StatusBadRequest},
		{name: "malformed", err: ErrMalformedPayload, want: http.StatusUnprocessableEntity},
		{name: "lock_lost", err: ErrLockLost, want: http.StatusConflict},
		{name: "state", err: ErrState, want: http.StatusConflict},
		{name: "connection", err: ErrConnection, want: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := HTTPStatus(tt.err); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	if !IsRecoverable(fmt.Errorf("settle: %w", ErrLockLost)) {
		t.Error("lock lost should be recoverable")
	}
	if !IsRecoverable(ErrMalformedPayload) {
		t.Error("malformed payload should be recoverable")
	}
	if IsRecoverable(ErrConnection) {
		t.Error("connection errors count against the retry budget")
	}
}
