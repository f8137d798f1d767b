package state

import "errors"

// Domain-specific errors for state devices.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyTable is returned when constructing a table with no entries.
	ErrEmptyTable = errors.New("state: table has no entries")

	// ErrDuplicateEntry is returned when two table entries share a name.
	ErrDuplicateEntry = errors.New("state: duplicate table entry")

	// ErrUnknownLabel is returned when a move targets a label the device
	// does not enumerate. Raised at call time, never deferred to the token.
	ErrUnknownLabel = errors.New("state: unknown target label")

	// ErrReadOnly is returned when moving a device that has no setter.
	ErrReadOnly = errors.New("state: device is read-only")

	// ErrMoveTimeout is recorded on a status token when the device does
	// not reach the target label before the deadline.
	ErrMoveTimeout = errors.New("state: timed out waiting for target state")
)
