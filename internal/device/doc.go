// Package device is the beamline inventory.
//
// A Device row names a piece of hardware, binds it to a PV prefix and a
// catalog state table, and classifies it (gate valve, stopper,
// attenuator, ...). Repository persists rows in SQLite; Registry adds a
// thread-safe cache with deep-copy isolation on top. StateHistory keeps
// a local audit trail of composite-state transitions alongside the
// time-series archiver.
package device
