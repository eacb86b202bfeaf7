package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/database"
)

// Repository defines the persistence operations for the pool catalogue.
// The abstraction lets the Registry be tested without a database.
type Repository interface {
	// GetByID retrieves a device by its catalogue ID.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by ID.
	List(ctx context.Context) ([]Device, error)

	// UpsertBatch writes every device in one transaction, inserting new
	// rows and overwriting the state of existing ones. CreatedAt of an
	// existing row is never changed.
	UpsertBatch(ctx context.Context, devices []Device) error
}

// SQLiteRepository implements Repository on the pool_devices table.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT id, protocol, address, name, kind, state, raw, value, unit,
		state_updated_at, created_at, updated_at
	FROM pool_devices`

// GetByID retrieves a device by its catalogue ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// UpsertBatch validates and writes every device in one transaction.
// The slice elements get their ID and timestamps filled in.
func (r *SQLiteRepository) UpsertBatch(ctx context.Context, devices []Device) error {
	now := time.Now().UTC()
	for i := range devices {
		d := &devices[i]
		if err := ValidateDevice(d); err != nil {
			return err
		}
		d.ID = DeviceID(d.Protocol, d.Address)
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.UpdatedAt = now
	}

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pool_devices (
				id, protocol, address, name, kind, state, raw, value, unit,
				state_updated_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				kind = excluded.kind,
				state = excluded.state,
				raw = excluded.raw,
				value = excluded.value,
				unit = excluded.unit,
				state_updated_at = excluded.state_updated_at,
				updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()

		for _, d := range devices {
			if _, err := stmt.ExecContext(ctx,
				d.ID, d.Protocol, d.Address, d.Name, string(d.Kind),
				d.State, d.Raw, d.Value, d.Unit,
				formatTime(d.StateUpdatedAt),
				formatTime(d.CreatedAt),
				formatTime(d.UpdatedAt),
			); err != nil {
				return fmt.Errorf("upserting device %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var d Device
	var kind, stateAt, createdAt, updatedAt string
	if err := row.Scan(
		&d.ID, &d.Protocol, &d.Address, &d.Name, &kind,
		&d.State, &d.Raw, &d.Value, &d.Unit,
		&stateAt, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	d.Kind = Kind(kind)

	var err error
	if d.StateUpdatedAt, err = parseTime(stateAt); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
