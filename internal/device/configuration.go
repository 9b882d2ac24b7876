package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConfigurationRepository persists per-device configuration rows.
type ConfigurationRepository interface {
	// GetByDevice retrieves the configuration for a device.
	// Returns ErrConfigurationNotFound if none has been applied yet.
	GetByDevice(ctx context.Context, deviceID string) (*Configuration, error)

	// Upsert inserts or replaces the configuration for a device.
	// The one-to-one constraint is enforced by the unique device_id column.
	Upsert(ctx context.Context, cfg *Configuration) error
}

// SQLiteConfigurationRepository implements ConfigurationRepository using SQLite.
type SQLiteConfigurationRepository struct {
	db *sql.DB
}

// NewSQLiteConfigurationRepository creates a new SQLite-backed configuration repository.
func NewSQLiteConfigurationRepository(db *sql.DB) *SQLiteConfigurationRepository {
	return &SQLiteConfigurationRepository{db: db}
}

// GetByDevice retrieves the configuration for a device.
func (r *SQLiteConfigurationRepository) GetByDevice(ctx context.Context, deviceID string) (*Configuration, error) {
	query := `
		SELECT id, device_id, ntp_server, timezone, offline_mode,
			event_buffer_size, heartbeat_interval, door_open_timeout,
			anti_passback, extra, created_at, updated_at
		FROM device_configurations
		WHERE device_id = ?`

	row := r.db.QueryRowContext(ctx, query, deviceID)
	cfg, err := scanConfiguration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigurationNotFound
		}
		return nil, fmt.Errorf("querying configuration: %w", err)
	}
	return cfg, nil
}

// Upsert inserts or replaces the configuration for a device.
func (r *SQLiteConfigurationRepository) Upsert(ctx context.Context, cfg *Configuration) error {
	if err := ValidateConfiguration(cfg); err != nil {
		return err
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	extraJSON, err := json.Marshal(cfg.Extra)
	if err != nil {
		return fmt.Errorf("marshalling extra: %w", err)
	}
	if cfg.Extra == nil {
		extraJSON = []byte("{}")
	}

	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	query := `
		INSERT INTO device_configurations (
			id, device_id, ntp_server, timezone, offline_mode,
			event_buffer_size, heartbeat_interval, door_open_timeout,
			anti_passback, extra, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			ntp_server = excluded.ntp_server,
			timezone = excluded.timezone,
			offline_mode = excluded.offline_mode,
			event_buffer_size = excluded.event_buffer_size,
			heartbeat_interval = excluded.heartbeat_interval,
			door_open_timeout = excluded.door_open_timeout,
			anti_passback = excluded.anti_passback,
			extra = excluded.extra,
			updated_at = excluded.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.DeviceID,
		nullableString(cfg.NTPServer),
		nullableString(cfg.Timezone),
		boolToInt(cfg.OfflineMode),
		cfg.EventBufferSize,
		cfg.HeartbeatInterval,
		cfg.DoorOpenTimeout,
		boolToInt(cfg.AntiPassback),
		string(extraJSON),
		cfg.CreatedAt.Format(time.RFC3339),
		cfg.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting configuration: %w", err)
	}

	return nil
}

// scanConfiguration scans a row or rows result into a Configuration.
func scanConfiguration(scanner rowScanner) (*Configuration, error) {
	var c Configuration
	var ntpServer, timezone sql.NullString
	var offlineMode, antiPassback int
	var extraJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(
		&c.ID,
		&c.DeviceID,
		&ntpServer,
		&timezone,
		&offlineMode,
		&c.EventBufferSize,
		&c.HeartbeatInterval,
		&c.DoorOpenTimeout,
		&antiPassback,
		&extraJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.OfflineMode = offlineMode != 0
	c.AntiPassback = antiPassback != 0

	if ntpServer.Valid {
		c.NTPServer = &ntpServer.String
	}
	if timezone.Valid {
		c.Timezone = &timezone.String
	}

	if extraJSON != "" {
		if err := json.Unmarshal([]byte(extraJSON), &c.Extra); err != nil {
			return nil, fmt.Errorf("unmarshalling extra: %w", err)
		}
	}

	var parseErr error
	c.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	c.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &c, nil
}
