package app

import (
	"errors"
	"net/http"

	"github.com/Toumari/NorthStar/app/store"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrForbidden      = errors.New("forbidden")
	ErrUserNotFound   = errors.New("user not found")
	ErrAmbiguousUser  = errors.New("correlation key matches more than one user")
	ErrNoSubscription = errors.New("no subscription on file")
	ErrUpstream       = errors.New("payment processor error")

	// ErrProcessorNotFound wraps ErrUpstream when the processor has no such object.
	ErrProcessorNotFound = errors.New("object not found at payment processor")
)

// statusFor maps a handler error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoSubscription), errors.Is(err, ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUserNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, ErrProcessorNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
