package webhook

import (
	"context"
	"fmt"

	"github.com/accessgrid/fleet-core/internal/adapter"
	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/google/uuid"
)

// DeviceGateway pushes event-host configuration to devices.
// Satisfied by adapter.Executor.
type DeviceGateway interface {
	SupportsWebhooks(ctx context.Context, deviceID string) (bool, error)
	ConfigureEventHost(ctx context.Context, deviceID string, cfg adapter.WebhookConfig) error
	DeleteWebhooks(ctx context.Context, deviceID string) error
}

// Manager configures device-side event hosts and tracks the registrations.
type Manager struct {
	gateway DeviceGateway
	repo    Repository
	logger  device.Logger
}

// NewManager creates a webhook manager.
func NewManager(gateway DeviceGateway, repo Repository) *Manager {
	return &Manager{
		gateway: gateway,
		repo:    repo,
		logger:  noopLogger{},
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SetLogger attaches a structured logger.
func (m *Manager) SetLogger(logger device.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Configure pushes an event host to the device, then records the
// registration. Vendors without a push mechanism get ErrWebhooksUnsupported
// and nothing is persisted.
func (m *Manager) Configure(ctx context.Context, deviceID string, req ConfigureRequest) (*Webhook, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}

	supported, err := m.gateway.SupportsWebhooks(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !supported {
		return nil, ErrWebhooksUnsupported
	}

	hostID := req.HostID
	if hostID == "" {
		// Vendor event host tables are small and numerically indexed;
		// slot 1 is the conventional default.
		hostID = "1"
	}
	protocol := req.Protocol
	if protocol == "" {
		protocol = "HTTP"
	}
	format := req.Format
	if format == "" {
		format = "JSON"
	}

	cfg := adapter.WebhookConfig{
		HostID:     hostID,
		URL:        req.URL,
		EventTypes: req.EventTypes,
		Protocol:   protocol,
		Format:     format,
	}
	if err := m.gateway.ConfigureEventHost(ctx, deviceID, cfg); err != nil {
		return nil, fmt.Errorf("configuring event host: %w", err)
	}

	hook := &Webhook{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		HostID:     hostID,
		URL:        req.URL,
		EventTypes: req.EventTypes,
		Protocol:   protocol,
		Format:     format,
		Active:     true,
	}
	if hook.EventTypes == nil {
		hook.EventTypes = []string{}
	}
	if err := m.repo.Upsert(ctx, hook); err != nil {
		return nil, err
	}

	m.logger.Info("webhook configured", "device_id", deviceID, "host_id", hostID, "url", req.URL)
	return hook, nil
}

// Remove clears the device's event hosts best-effort, then deactivates the
// registration. A device that cannot be reached still loses its row; the
// next Configure overwrites whatever state it kept.
func (m *Manager) Remove(ctx context.Context, deviceID, hostID string) error {
	if err := m.gateway.DeleteWebhooks(ctx, deviceID); err != nil {
		m.logger.Warn("device-side webhook delete failed",
			"device_id", deviceID, "host_id", hostID, "error", err)
	}

	if err := m.repo.Deactivate(ctx, deviceID, hostID); err != nil {
		return err
	}

	m.logger.Info("webhook removed", "device_id", deviceID, "host_id", hostID)
	return nil
}

// List returns a device's registrations, active first.
func (m *Manager) List(ctx context.Context, deviceID string) ([]Webhook, error) {
	return m.repo.ListByDevice(ctx, deviceID)
}
