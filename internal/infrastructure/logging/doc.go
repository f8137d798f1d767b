// Package logging provides the structured logger used across beamcore.
//
// It is a thin wrapper around log/slog that applies the configured level,
// format and destination, and stamps every record with the service name
// and build version.
package logging
