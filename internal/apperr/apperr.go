// Package apperr defines the error taxonomy shared by the order pipeline.
// Concrete errors in other packages wrap one of these roots so callers can
// classify failures with errors.Is regardless of where they originated.
package apperr

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrValidation marks malformed order construction. Such orders never reach the queue.
	ErrValidation = errors.New("validation failed")

	// ErrConnection marks a transport-level failure. The caller may retry with backoff.
	ErrConnection = errors.New("queue connection failed")

	// ErrMalformedPayload marks a message body that cannot be decoded into an order.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrLockLost marks a settlement attempt on a message whose lock is no longer held.
	ErrLockLost = errors.New("message lock lost")

	// ErrState marks misuse of an already finalized builder or client handle.
	ErrState = errors.New("invalid state")
)

// Kind returns a short, stable label for err, suitable for logs and metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrConnection):
		return "connection"

	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"

	case errors.Is(err, ErrLockLost):
		return "lock_lost"

	case errors.Is(err, ErrState):
		return "state"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

// IsRecoverable reports whether a processing loop should log err and carry on.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrLockLost) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrValidation)
}

// HTTPStatus maps err to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, ErrMalformedPayload):
		return http.StatusUnprocessableEntity

	case errors.Is(err, ErrLockLost),
		errors.Is(err, ErrState):
		return http.StatusConflict

	case errors.Is(err, ErrConnection):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}
