package probe

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValue reports a read response without a value field.
	ErrNoValue = errors.New("get returned no value")
	// ErrValueMismatch reports a read that echoed a different value than was written.
	ErrValueMismatch = errors.New("value mismatch")
)

// StatusError is returned when the target answers with a non-2xx status.
type StatusError struct {
	Code   int
	Reason string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.Code, e.Reason)
}
