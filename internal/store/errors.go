package store

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrNotFound indicates the task or block no longer exists in the store.
var ErrNotFound = errors.New("store: not found")

// ErrUnauthorized indicates the store rejected our credentials.
var ErrUnauthorized = errors.New("store: unauthorized")

// TransientError marks a failure worth retrying: network hiccups, rate
// limits, server-side errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("store: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}

// classifyHTTP maps a store response code to the error taxonomy. Context
// cancellation is passed through untouched so callers can distinguish
// shutdown from store failure.
func classifyHTTP(statusCode int, op string) error {
	switch {
	case statusCode == 401 || statusCode == 403:
		return errors.Wrapf(ErrUnauthorized, "%s returned %d", op, statusCode)
	case statusCode == 404:
		return errors.Wrapf(ErrNotFound, "%s returned %d", op, statusCode)
	case statusCode == 429 || statusCode >= 500:
		return Transient(errors.Errorf("%s returned %d", op, statusCode))
	default:
		return errors.Errorf("%s returned %d", op, statusCode)
	}
}

// retryable reports whether the gateway should attempt op again.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsTransient(err)
}
