// Package beamline composes the inventory, the PV transport and the
// state machinery into a running beamline.
//
// The catalog carries the standard state tables (open/closed limit
// switches, in/out diagnostics) and per-class drive commands. The
// Manager builds one PVState positioner per inventory row, owns their
// monitor subscriptions, and fans every composite-state transition out
// to the local history store, the time-series archiver, and any
// registered sinks such as the websocket hub.
package beamline
