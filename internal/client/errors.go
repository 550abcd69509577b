package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks transport failures worth retrying.
	ErrTransient = errors.New("transient transport error")
	// ErrUnprocessable marks payloads the backend rejected as invalid.
	ErrUnprocessable = errors.New("unprocessable entity")
	ErrNotFound      = errors.New("not found")
)

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// IsTransient reports whether err belongs to the retryable class.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

type transientError struct {
	op  string
	err error
}

func (e *transientError) Error() string { return e.op + ": " + e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{ErrTransient, e.err} }

type classifiedError struct {
	class  error
	status *StatusError
}

func (e *classifiedError) Error() string { return e.status.Error() }

func (e *classifiedError) Unwrap() []error { return []error{e.class, e.status} }
