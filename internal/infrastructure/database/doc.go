// Package database manages the SQLite store backing the device inventory
// and state history.
//
// It wraps database/sql with WAL-mode pragmas tuned for a single-writer
// workload, embedded schema migrations with applied-version tracking, and
// health checks for the monitoring API.
package database
