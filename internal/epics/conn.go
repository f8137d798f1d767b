package epics

import (
	"context"
	"time"
)

// Severity mirrors the EPICS alarm severity attached to a PV sample.
type Severity int

// Alarm severities, in increasing order of badness.
const (
	SeverityNoAlarm Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityInvalid
)

// String returns the EPICS name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityNoAlarm:
		return "NO_ALARM"
	case SeverityMinor:
		return "MINOR"
	case SeverityMajor:
		return "MAJOR"
	case SeverityInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// Reading is a timestamped sample of a process variable.
//
// Value holds the raw channel value as decoded from the transport:
// int64 for integer channels, float64 for analog channels, string for
// enum/string channels.
type Reading struct {
	PV        string
	Value     any
	Severity  Severity
	Timestamp time.Time
}

// MonitorFunc is the callback signature for PV change notifications.
//
// Callbacks may be invoked from transport goroutines and must not block
// for extended periods.
type MonitorFunc func(Reading)

// Subscription is a handle on an active monitor registration.
//
// Unsubscribe removes the callback deterministically; it is safe to call
// more than once.
type Subscription interface {
	Unsubscribe()
}

// Conn is a connection to a channel-access transport, addressing values
// by PV name.
//
// Implementations must be safe for concurrent use. The two provided
// implementations are Gateway (MQTT channel-access gateway) and SoftIOC
// (in-process, for tests and simulator mode).
type Conn interface {
	// Get reads the current value of a PV, blocking until a value is
	// available or the context is done.
	Get(ctx context.Context, pv string) (Reading, error)

	// Put writes a value to a PV.
	Put(ctx context.Context, pv string, value any) error

	// Subscribe registers a callback for every value change of a PV.
	Subscribe(pv string, fn MonitorFunc) (Subscription, error)

	// Close releases transport resources. Outstanding subscriptions are
	// dropped.
	Close() error
}
