package epics

import "errors"

// Domain errors for the epics package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, epics.ErrNoSuchPV) {
//	    // handle unknown PV
//	}
var (
	// ErrNoSuchPV is returned when a PV name is not known to the transport.
	ErrNoSuchPV = errors.New("epics: no such PV")

	// ErrConnClosed is returned when operating on a closed connection.
	ErrConnClosed = errors.New("epics: connection closed")

	// ErrGetTimeout is returned when a read does not produce a value in time.
	ErrGetTimeout = errors.New("epics: get timed out waiting for value")

	// ErrInvalidPV is returned when a PV name is empty or malformed.
	ErrInvalidPV = errors.New("epics: invalid PV name")
)
