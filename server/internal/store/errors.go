package store

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord is matched by every ValidationError via errors.Is.
var ErrInvalidRecord = errors.New("invalid record")

// ValidationError rejects a whole mutation batch. Index is the position of
// the first offending record in the batch.
type ValidationError struct {
	Index  int
	ID     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("store: record %d (id %q): %s", e.Index, e.ID, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRecord }
