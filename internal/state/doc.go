// Package state implements composite-state devices and positioners.
//
// A Table maps each contributing signal's raw readback through a
// per-signal interpretation, with the defer sentinel meaning the signal
// has no opinion. All non-deferred interpretations must agree; any
// disagreement or uninterpretable value resolves to unknown, never to
// an error and never to an arbitrary pick.
//
// PVState derives a live composite label over signals from
// internal/epics and commands moves through a pluggable setter.
// StatesRecord wraps an EPICS states record (setpoint plus readback) as
// a positioner. Both hand out Status tokens: asynchronous completion
// flags that poll (WaitFor) or subscribe (WaitForEvent) until the
// device reaches the target label or a deadline records a timeout.
package state
