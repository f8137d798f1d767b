package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or slug does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device whose ID, slug
	// or PV prefix is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidClass is returned when a class value is not recognised.
	ErrInvalidClass = errors.New("device: invalid class")

	// ErrInvalidName is returned when a device name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidSlug is returned when a slug format is invalid.
	ErrInvalidSlug = errors.New("device: invalid slug")

	// ErrInvalidPrefix is returned when a PV prefix is empty or malformed.
	ErrInvalidPrefix = errors.New("device: invalid PV prefix")

	// ErrInvalidStateTable is returned when a device names no state table.
	ErrInvalidStateTable = errors.New("device: invalid state table")
)
