package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// History query bounds.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// SQLiteStateHistory implements StateHistoryRepository using SQLite.
type SQLiteStateHistory struct {
	db *sql.DB
}

// NewSQLiteStateHistory creates a new SQLite-backed history store.
func NewSQLiteStateHistory(db *sql.DB) *SQLiteStateHistory {
	return &SQLiteStateHistory{db: db}
}

// RecordTransition records one composite-state transition.
func (s *SQLiteStateHistory) RecordTransition(ctx context.Context, deviceID, fromState, toState, source string) error {
	query := `
		INSERT INTO state_history (device_id, from_state, to_state, source, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		deviceID, fromState, toState, source,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording state transition: %w", err)
	}
	return nil
}

// GetHistory returns recent transitions for the device, newest first.
// The limit is clamped to [1, 500]; zero selects the default of 50.
func (s *SQLiteStateHistory) GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `
		SELECT id, device_id, from_state, to_state, source, created_at
		FROM state_history
		WHERE device_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	var entries []StateHistoryEntry
	for rows.Next() {
		var (
			e         StateHistoryEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.FromState, &e.ToState, &e.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing history timestamp: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}
