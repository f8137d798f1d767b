// Package epics provides PV-level access to the control system.
//
// The Conn interface abstracts the transport: Gateway speaks to an MQTT
// channel-access gateway bridge, SoftIOC is an in-process database for
// simulator mode and tests. Signal binds one PV name to a Conn; Device
// groups signals and sub-devices under a shared PV prefix, so callers
// navigate by component role rather than full PV names.
//
// Higher layers (internal/state, internal/beamline) build positioners
// and composite-state devices on top of these primitives.
package epics
