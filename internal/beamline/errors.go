package beamline

import "errors"

// Domain errors for the beamline composition layer.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnknownDevice is returned when a slug matches no live positioner.
	ErrUnknownDevice = errors.New("beamline: unknown device")

	// ErrUnknownTable is returned when an inventory row names a state
	// table the catalog does not carry.
	ErrUnknownTable = errors.New("beamline: unknown state table")
)
