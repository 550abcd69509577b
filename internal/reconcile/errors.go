package reconcile

import (
	"errors"
	"fmt"

	"github.com/your-org/fdsender/internal/models"
)

var ErrUnresolved = errors.New("unresolved metadata")

// UnresolvedError reports events that never matched a backend object within
// the attempt budget. They are abandoned in the store before it is returned.
type UnresolvedError struct {
	Base  models.Base
	Count int
	// Err is the last search failure, if the budget ran out on one.
	Err error
}

func (e *UnresolvedError) Error() string {
	msg := fmt.Sprintf("unresolved metadata: %d %s events", e.Count, e.Base)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolved
}

func (e *UnresolvedError) Unwrap() error {
	return e.Err
}
