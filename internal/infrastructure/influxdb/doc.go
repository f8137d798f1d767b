// Package influxdb is the beamcore archiver.
//
// It wraps the InfluxDB v2 client to record composite-state transitions
// and raw PV samples as time-series points. Writes are batched and
// non-blocking; asynchronous write failures are surfaced through the
// SetOnError callback rather than bubbling into the control path.
//
// The archiver is optional: when disabled in config, Connect returns
// ErrDisabled and callers run without trending.
package influxdb
