package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourceMonitor = "monitor"
	StateHistorySourceMove    = "move"
)

// StateHistoryEntry represents one composite-state transition record.
//
// Entries keep a local audit trail of where each device has been even
// when the time-series archiver is unavailable.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID is the unique identifier of the device.
	DeviceID string `json:"device_id"`

	// FromState is the composite label before the transition.
	FromState string `json:"from_state"`

	// ToState is the composite label after the transition.
	ToState string `json:"to_state"`

	// Source identifies how the transition was observed (monitor, move).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the transition (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves composite-state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordTransition records one composite-state transition.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique device identifier
	//   - fromState: Composite label before the transition
	//   - toState: Composite label after the transition
	//   - source: Origin of the observation (monitor, move)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordTransition(ctx context.Context, deviceID, fromState, toState, source string) error

	// GetHistory returns recent transitions for the device.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Unique device identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []StateHistoryEntry: Ordered newest-first entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
