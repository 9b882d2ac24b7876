package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository persists webhook registrations and their trigger counters.
type Repository interface {
	// GetByHostID returns the registration for (device, host).
	// Returns ErrWebhookNotFound if none exists.
	GetByHostID(ctx context.Context, deviceID, hostID string) (*Webhook, error)

	// ListByDevice returns every registration for a device, active first.
	ListByDevice(ctx context.Context, deviceID string) ([]Webhook, error)

	// Upsert inserts or replaces the registration for (device, host).
	Upsert(ctx context.Context, hook *Webhook) error

	// Deactivate marks a registration inactive, keeping its history.
	// Returns ErrWebhookNotFound if no active registration matches.
	Deactivate(ctx context.Context, deviceID, hostID string) error

	// RecordTrigger bumps the trigger counter for (device, host) and
	// stores the delivery error, if any.
	RecordTrigger(ctx context.Context, deviceID, hostID string, errMsg *string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed webhook repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const webhookColumns = `id, device_id, host_id, url, event_types, protocol, format,
		is_active, trigger_count, last_triggered, last_error, created_at, updated_at`

// GetByHostID returns the registration for (device, host).
func (r *SQLiteRepository) GetByHostID(ctx context.Context, deviceID, hostID string) (*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM device_webhooks WHERE device_id = ? AND host_id = ?`

	row := r.db.QueryRowContext(ctx, query, deviceID, hostID)
	hook, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWebhookNotFound
		}
		return nil, fmt.Errorf("querying webhook: %w", err)
	}
	return hook, nil
}

// ListByDevice returns every registration for a device, active first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string) ([]Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM device_webhooks
		WHERE device_id = ? ORDER BY is_active DESC, host_id`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []Webhook
	for rows.Next() {
		hook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		hooks = append(hooks, *hook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating webhooks: %w", err)
	}
	return hooks, nil
}

// Upsert inserts or replaces the registration for (device, host).
// Re-registering a host reactivates it and resets nothing else.
func (r *SQLiteRepository) Upsert(ctx context.Context, hook *Webhook) error {
	now := time.Now().UTC()
	if hook.CreatedAt.IsZero() {
		hook.CreatedAt = now
	}
	hook.UpdatedAt = now

	eventTypes, err := json.Marshal(hook.EventTypes)
	if err != nil {
		return fmt.Errorf("encoding event types: %w", err)
	}

	query := `
		INSERT INTO device_webhooks (
			id, device_id, host_id, url, event_types, protocol, format,
			is_active, trigger_count, last_triggered, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?)
		ON CONFLICT(device_id, host_id) DO UPDATE SET
			url = excluded.url,
			event_types = excluded.event_types,
			protocol = excluded.protocol,
			format = excluded.format,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		hook.ID,
		hook.DeviceID,
		hook.HostID,
		hook.URL,
		string(eventTypes),
		hook.Protocol,
		hook.Format,
		boolToInt(hook.Active),
		hook.CreatedAt.Format(time.RFC3339),
		hook.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting webhook: %w", err)
	}
	return nil
}

// Deactivate marks a registration inactive, keeping its history.
func (r *SQLiteRepository) Deactivate(ctx context.Context, deviceID, hostID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_webhooks SET is_active = 0, updated_at = ?
		WHERE device_id = ? AND host_id = ? AND is_active = 1`,
		now, deviceID, hostID,
	)
	if err != nil {
		return fmt.Errorf("deactivating webhook: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// RecordTrigger bumps the trigger counter for (device, host).
func (r *SQLiteRepository) RecordTrigger(ctx context.Context, deviceID, hostID string, errMsg *string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE device_webhooks SET
			trigger_count = trigger_count + 1,
			last_triggered = ?,
			last_error = ?,
			updated_at = ?
		WHERE device_id = ? AND host_id = ?`,
		now, nullableString(errMsg), now, deviceID, hostID,
	)
	if err != nil {
		return fmt.Errorf("recording webhook trigger: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebhook(scanner rowScanner) (*Webhook, error) {
	var w Webhook
	var eventTypes string
	var isActive int
	var lastTriggered, lastError sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&w.ID,
		&w.DeviceID,
		&w.HostID,
		&w.URL,
		&eventTypes,
		&w.Protocol,
		&w.Format,
		&isActive,
		&w.TriggerCount,
		&lastTriggered,
		&lastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Active = isActive != 0
	if err := json.Unmarshal([]byte(eventTypes), &w.EventTypes); err != nil {
		return nil, fmt.Errorf("decoding event types: %w", err)
	}
	if lastTriggered.Valid {
		if t, err := time.Parse(time.RFC3339, lastTriggered.String); err == nil {
			w.LastTriggered = &t
		}
	}
	if lastError.Valid {
		w.LastError = &lastError.String
	}

	var parseErr error
	w.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	w.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &w, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
