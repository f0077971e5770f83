package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ApplyBatch upserts and removes devices in a single transaction.
	// This is the persistence side of registry reconciliation: the host
	// must never observe a partially applied batch.
	ApplyBatch(ctx context.Context, upserts []Device, removeIDs []string) error

	// UpdateState replaces only the state of a device.
	UpdateState(ctx context.Context, id string, state map[string]any) error
}

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
	query := `
		SELECT id, name, type, station_id, capabilities, state, created_at, updated_at
		FROM devices
		WHERE id = ?`

	device, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT id, name, type, station_id, capabilities, state, created_at, updated_at
		FROM devices
		ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
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
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// ApplyBatch upserts and removes devices in a single transaction.
func (r *SQLiteRepository) ApplyBatch(ctx context.Context, upserts []Device, removeIDs []string) error {
	if len(upserts) == 0 && len(removeIDs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for i := range upserts {
		if err := upsertDevice(ctx, tx, &upserts[i]); err != nil {
			return err
		}
	}
	for _, id := range removeIDs {
		if _, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting device %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// UpdateState replaces only the state of a device.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state map[string]any) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET state = ?, updated_at = ? WHERE id = ?",
		string(stateJSON), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// upsertDevice inserts or replaces a device row inside a transaction.
// created_at is preserved on conflict so device identity is visible in
// the row's age even across re-syncs.
func upsertDevice(ctx context.Context, tx *sql.Tx, d *Device) error {
	if d.ID == "" || d.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidDevice)
	}

	capsJSON, err := json.Marshal(d.Capabilities)
	if err != nil {
		return fmt.Errorf("encoding capabilities: %w", err)
	}
	stateJSON, err := json.Marshal(d.State)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO devices (id, name, type, station_id, capabilities, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			station_id = excluded.station_id,
			capabilities = excluded.capabilities,
			updated_at = excluded.updated_at`,
		d.ID, d.Name, d.Type, d.StationID,
		string(capsJSON), string(stateJSON),
		d.CreatedAt.UTC().Format(time.RFC3339),
		d.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device %s: %w", d.ID, err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanDevice.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice reads one device row.
func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var capsJSON, stateJSON, createdAt, updatedAt string

	if err := row.Scan(&d.ID, &d.Name, &d.Type, &d.StationID,
		&capsJSON, &stateJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(capsJSON), &d.Capabilities); err != nil {
		return nil, fmt.Errorf("decoding capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &d.State); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &d, nil
}
