package precondition

import (
	"errors"
	"fmt"
)

var ErrPrecondition = errors.New("precondition violated")

// PreconditionError is a test-setup logic error. It is never retried.
type PreconditionError struct {
	Subject string
	Reason  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition violated: %s: %s", e.Subject, e.Reason)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func violation(subject, format string, args ...any) error {
	return &PreconditionError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}
