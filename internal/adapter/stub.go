package adapter

import (
	"context"

	"github.com/accessgrid/fleet-core/internal/device"
)

// Stub is the adapter for devices the engine cannot speak to: unknown
// vendors on non-HTTP transports. Commands succeed without side effects so
// reconciliation ledgers stay consistent while hardware is unsupported;
// connectivity always reports false so the fleet view never shows a stub
// device as online.
type Stub struct{}

// NewStub creates a stub adapter.
func NewStub() *Stub { return &Stub{} }

// Kind returns KindStub.
func (a *Stub) Kind() Kind { return KindStub }

// SendCommand succeeds with empty data. No device is contacted.
func (a *Stub) SendCommand(context.Context, *device.Device, device.Credentials, Command) (*Result, error) {
	return &Result{Success: true}, nil
}

// TestConnection always reports false.
func (a *Stub) TestConnection(context.Context, *device.Device, device.Credentials) bool {
	return false
}

// GetDeviceInfo returns an empty report.
func (a *Stub) GetDeviceInfo(_ context.Context, dev *device.Device, _ device.Credentials) (*DeviceInfo, error) {
	return &DeviceInfo{Host: dev.Host}, nil
}

// GetDeviceHealth reports unknown.
func (a *Stub) GetDeviceHealth(context.Context, *device.Device, device.Credentials) (*Health, error) {
	return &Health{Status: device.StatusUnknown}, nil
}

// GetConfiguration returns an empty map.
func (a *Stub) GetConfiguration(context.Context, *device.Device, device.Credentials) (map[string]any, error) {
	return map[string]any{}, nil
}

// UpdateConfiguration is a no-op.
func (a *Stub) UpdateConfiguration(context.Context, *device.Device, device.Credentials, *device.Configuration) error {
	return nil
}

// GetWebhookConfigurations returns nothing.
func (a *Stub) GetWebhookConfigurations(context.Context, *device.Device, device.Credentials) ([]WebhookConfig, error) {
	return nil, nil
}

// ConfigureEventHost is unsupported on stub devices.
func (a *Stub) ConfigureEventHost(context.Context, *device.Device, device.Credentials, WebhookConfig) error {
	return ErrUnsupported
}

// DeleteWebhooks is unsupported on stub devices.
func (a *Stub) DeleteWebhooks(context.Context, *device.Device, device.Credentials) error {
	return ErrUnsupported
}

// SupportsWebhooks is false.
func (a *Stub) SupportsWebhooks(*device.Device) bool { return false }

// DiscoverDevices finds nothing.
func (a *Stub) DiscoverDevices(context.Context) ([]DeviceInfo, error) {
	return nil, nil
}
