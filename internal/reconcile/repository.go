package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists the per-device sync ledger.
type Repository interface {
	// ListByDevice returns every ledger row for a device.
	ListByDevice(ctx context.Context, deviceID string) ([]SyncRecord, error)

	// ListFailed returns the failed ledger rows for a device.
	ListFailed(ctx context.Context, deviceID string) ([]SyncRecord, error)

	// Upsert inserts or replaces the row for (device, employee).
	Upsert(ctx context.Context, record *SyncRecord) error

	// Delete removes one row.
	// Returns ErrRecordNotFound if the row does not exist.
	Delete(ctx context.Context, deviceID, employeeID string) error

	// DeleteByDevice removes all rows for a device.
	DeleteByDevice(ctx context.Context, deviceID string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed ledger repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const syncColumns = `device_id, employee_id, status, type, sync_attempted, synced_at, error_message`

// ListByDevice returns every ledger row for a device.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]SyncRecord, error) {
	query := `SELECT ` + syncColumns + ` FROM employee_device_sync WHERE device_id = ? ORDER BY employee_id`
	return r.queryRecords(ctx, query, deviceID)
}

// ListFailed returns the failed ledger rows for a device.
func (r *SQLiteRepository) ListFailed(ctx context.Context, deviceID string) ([]SyncRecord, error) {
	query := `SELECT ` + syncColumns + ` FROM employee_device_sync
		WHERE device_id = ? AND status = ? ORDER BY employee_id`
	return r.queryRecords(ctx, query, deviceID, string(StatusFailed))
}

// Upsert inserts or replaces the row for (device, employee).
func (r *SQLiteRepository) Upsert(ctx context.Context, record *SyncRecord) error {
	query := `
		INSERT INTO employee_device_sync (
			device_id, employee_id, status, type, sync_attempted, synced_at, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, employee_id) DO UPDATE SET
			status = excluded.status,
			type = excluded.type,
			sync_attempted = excluded.sync_attempted,
			synced_at = excluded.synced_at,
			error_message = excluded.error_message`

	_, err := r.db.ExecContext(ctx, query,
		record.DeviceID,
		record.EmployeeID,
		string(record.Status),
		string(record.Type),
		nullableTime(record.SyncAttempted),
		nullableTime(record.SyncedAt),
		nullableString(record.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("upserting sync record: %w", err)
	}
	return nil
}

// Delete removes one row.
func (r *SQLiteRepository) Delete(ctx context.Context, deviceID, employeeID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM employee_device_sync WHERE device_id = ? AND employee_id = ?",
		deviceID, employeeID,
	)
	if err != nil {
		return fmt.Errorf("deleting sync record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteByDevice removes all rows for a device.
func (r *SQLiteRepository) DeleteByDevice(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM employee_device_sync WHERE device_id = ?", deviceID)
	if err != nil {
		return fmt.Errorf("deleting sync records for device: %w", err)
	}
	return nil
}

// queryRecords executes a query and returns a slice of sync records.
func (r *SQLiteRepository) queryRecords(ctx context.Context, query string, args ...any) ([]SyncRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sync records: %w", err)
	}
	defer rows.Close()

	var records []SyncRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning sync record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync records: %w", err)
	}

	return records, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*SyncRecord, error) {
	var rec SyncRecord
	var status, syncType string
	var attempted, syncedAt, errMsg sql.NullString

	err := scanner.Scan(
		&rec.DeviceID,
		&rec.EmployeeID,
		&status,
		&syncType,
		&attempted,
		&syncedAt,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = SyncStatus(status)
	rec.Type = SyncType(syncType)
	if attempted.Valid {
		if t, err := time.Parse(time.RFC3339, attempted.String); err == nil {
			rec.SyncAttempted = &t
		}
	}
	if syncedAt.Valid {
		if t, err := time.Parse(time.RFC3339, syncedAt.String); err == nil {
			rec.SyncedAt = &t
		}
	}
	if errMsg.Valid {
		rec.ErrorMessage = &errMsg.String
	}

	return &rec, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
