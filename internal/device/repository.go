package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetBySlug retrieves a device by its slug.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetBySlug(ctx context.Context, slug string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListByBeamline retrieves all devices on a specific beamline.
	ListByBeamline(ctx context.Context, beamline string) ([]Device, error)

	// ListByClass retrieves all devices of a specific class.
	ListByClass(ctx context.Context, class Class) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the ID, slug or prefix is already taken.
	Create(ctx context.Context, device *Device) error

	// Update modifies an existing device.
	// Returns ErrDeviceNotFound if the device does not exist.
	Update(ctx context.Context, device *Device) error

	// Delete removes a device by ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, id string) error
}

const deviceColumns = `id, name, slug, prefix, class, beamline, area, state_table, ioc, metadata, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// GetBySlug retrieves a device by its slug.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE slug = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by slug: %w", err)
	}
	return device, nil
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY beamline, name`
	return r.queryDevices(ctx, query)
}

// ListByBeamline retrieves all devices on a specific beamline.
func (r *SQLiteRepository) ListByBeamline(ctx context.Context, beamline string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE beamline = ? ORDER BY name`
	return r.queryDevices(ctx, query, beamline)
}

// ListByClass retrieves all devices of a specific class.
func (r *SQLiteRepository) ListByClass(ctx context.Context, class Class) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE class = ? ORDER BY beamline, name`
	return r.queryDevices(ctx, query, string(class))
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	metadataJSON, err := marshalMetadata(device.Metadata)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	query := `
		INSERT INTO devices (` + deviceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		device.Slug,
		device.Prefix,
		string(device.Class),
		device.Beamline,
		nullableString(device.Area),
		device.StateTable,
		nullableString(device.IOC),
		metadataJSON,
		device.CreatedAt.Format(time.RFC3339Nano),
		device.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, device.ID)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	metadataJSON, err := marshalMetadata(device.Metadata)
	if err != nil {
		return err
	}

	device.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices
		SET name = ?, slug = ?, prefix = ?, class = ?, beamline = ?, area = ?,
			state_table = ?, ioc = ?, metadata = ?, updated_at = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query,
		device.Name,
		device.Slug,
		device.Prefix,
		string(device.Class),
		device.Beamline,
		nullableString(device.Area),
		device.StateTable,
		nullableString(device.IOC),
		metadataJSON,
		device.UpdatedAt.Format(time.RFC3339Nano),
		device.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, device.ID)
		}
		return fmt.Errorf("updating device: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanDevice.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var (
		d            Device
		class        string
		area, ioc    sql.NullString
		metadataJSON string
		createdAt    string
		updatedAt    string
	)

	err := s.Scan(
		&d.ID, &d.Name, &d.Slug, &d.Prefix, &class, &d.Beamline,
		&area, &d.StateTable, &ioc, &metadataJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Class = Class(class)
	if area.Valid {
		d.Area = &area.String
	}
	if ioc.Valid {
		d.IOC = &ioc.String
	}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &d.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling metadata: %w", err)
		}
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &d, nil
}

func marshalMetadata(m Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(data), nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// isUniqueViolation reports whether err is a SQLite unique or primary
// key constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
