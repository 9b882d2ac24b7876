package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventRepository persists the normalized event log.
type EventRepository interface {
	// Insert stores one normalized event.
	Insert(ctx context.Context, event *Event) error

	// ListByDevice returns the most recent events for a device.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Event, error)
}

// SQLiteEventRepository implements EventRepository using SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

// NewSQLiteEventRepository creates a new SQLite-backed event repository.
func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

const eventColumns = `id, device_id, event_type, employee_ref, credential_ref,
		granted, payload, source_ip, occurred_at, received_at`

// Insert stores one normalized event.
func (r *SQLiteEventRepository) Insert(ctx context.Context, event *Event) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}

	query := `
		INSERT INTO events (
			id, device_id, event_type, employee_ref, credential_ref,
			granted, payload, source_ip, occurred_at, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		nullableString(event.DeviceID),
		event.EventType,
		nullableString(event.EmployeeRef),
		nullableString(event.CredentialRef),
		nullableBool(event.Granted),
		string(payload),
		nullableString(event.SourceIP),
		event.OccurredAt.UTC().Format(time.RFC3339),
		event.ReceivedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ListByDevice returns the most recent events for a device.
func (r *SQLiteEventRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + eventColumns + ` FROM events
		WHERE device_id = ? ORDER BY occurred_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

func scanEvent(scanner rowScanner) (*Event, error) {
	var e Event
	var deviceID, employeeRef, credentialRef, sourceIP sql.NullString
	var granted sql.NullInt64
	var payload, occurredAt, receivedAt string

	err := scanner.Scan(
		&e.ID,
		&deviceID,
		&e.EventType,
		&employeeRef,
		&credentialRef,
		&granted,
		&payload,
		&sourceIP,
		&occurredAt,
		&receivedAt,
	)
	if err != nil {
		return nil, err
	}

	if deviceID.Valid {
		e.DeviceID = &deviceID.String
	}
	if employeeRef.Valid {
		e.EmployeeRef = &employeeRef.String
	}
	if credentialRef.Valid {
		e.CredentialRef = &credentialRef.String
	}
	if sourceIP.Valid {
		e.SourceIP = &sourceIP.String
	}
	if granted.Valid {
		g := granted.Int64 != 0
		e.Granted = &g
	}
	if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
		return nil, fmt.Errorf("decoding event payload: %w", err)
	}

	var parseErr error
	e.OccurredAt, parseErr = time.Parse(time.RFC3339, occurredAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing occurred_at: %w", parseErr)
	}
	e.ReceivedAt, parseErr = time.Parse(time.RFC3339, receivedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing received_at: %w", parseErr)
	}

	return &e, nil
}

func nullableBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	v := int64(0)
	if *b {
		v = 1
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
