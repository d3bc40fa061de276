package aggregate

import (
	"errors"
	"fmt"
)

// Common errors returned by the controller.
var (
	// ErrNoQuery is returned by Refetch before the first Update.
	ErrNoQuery = errors.New("no query set")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("controller closed")
)

// PartialPartitionError reports a failed partition while other partitions
// of the same view loaded. Their items are still part of the aggregate.
type PartialPartitionError struct {
	TypeValue string
	Failed    int
	Succeeded int
	Err       error
}

// Error implements the error interface.
func (e *PartialPartitionError) Error() string {
	return fmt.Sprintf("partition %q failed (%d of %d partitions failed): %v",
		e.TypeValue, e.Failed, e.Failed+e.Succeeded, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PartialPartitionError) Unwrap() error {
	return e.Err
}
