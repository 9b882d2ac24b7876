package adapter

import (
	"context"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
)

// Command is a vendor-neutral instruction for a device.
type Command struct {
	// Name selects the operation (e.g. "addUser", "deleteUser", "unlock",
	// "reboot"). Each adapter maps names to its vendor endpoints.
	Name string `json:"name"`

	// Parameters carries operation arguments (employee payloads, door
	// numbers, durations). Shape is command-specific.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Timeout bounds the round trip. Zero means the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Result is a vendor-neutral command outcome.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
}

// DeviceInfo describes a device as reported by the device itself.
type DeviceInfo struct {
	SerialNumber    string `json:"serial_number,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	MACAddress      string `json:"mac_address,omitempty"`
	Host            string `json:"host,omitempty"`
}

// Health is a point-in-time device health report.
type Health struct {
	Status device.Status `json:"status"`

	// Uptime as reported by the device, zero if unknown.
	Uptime time.Duration `json:"uptime,omitempty"`

	// Issues lists vendor-reported fault descriptions.
	Issues []string `json:"issues,omitempty"`

	// ResponseTime is the probe round trip.
	ResponseTime time.Duration `json:"response_time"`
}

// WebhookConfig describes an event host registration on a device.
type WebhookConfig struct {
	// HostID is the device-side slot identifier for this registration.
	HostID string `json:"host_id"`

	// URL is the callback the device will POST events to.
	URL string `json:"url"`

	// EventTypes limits which events the device pushes. Empty means all.
	EventTypes []string `json:"event_types,omitempty"`

	Protocol string `json:"protocol"` // "HTTP" or "HTTPS"
	Format   string `json:"format"`   // "JSON" or "XML"
}

// Adapter translates vendor-neutral operations into a vendor's device
// protocol. Implementations are stateless; credentials are unsealed by the
// executor and passed per call so plaintext never outlives the request.
type Adapter interface {
	// Kind returns the vendor family this adapter speaks.
	Kind() Kind

	// SendCommand executes a command against the device.
	SendCommand(ctx context.Context, dev *device.Device, creds device.Credentials, cmd Command) (*Result, error)

	// TestConnection reports whether the device answers. It never returns
	// an error; any failure to connect is simply false.
	TestConnection(ctx context.Context, dev *device.Device, creds device.Credentials) bool

	// GetDeviceInfo reads identity information from the device.
	GetDeviceInfo(ctx context.Context, dev *device.Device, creds device.Credentials) (*DeviceInfo, error)

	// GetDeviceHealth probes the device and maps its report to a status.
	GetDeviceHealth(ctx context.Context, dev *device.Device, creds device.Credentials) (*Health, error)

	// GetConfiguration reads the device's current parameter set.
	GetConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials) (map[string]any, error)

	// UpdateConfiguration pushes a configuration to the device.
	UpdateConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials, cfg *device.Configuration) error

	// GetWebhookConfigurations lists event host registrations on the device.
	GetWebhookConfigurations(ctx context.Context, dev *device.Device, creds device.Credentials) ([]WebhookConfig, error)

	// ConfigureEventHost registers a callback URL on the device.
	ConfigureEventHost(ctx context.Context, dev *device.Device, creds device.Credentials, cfg WebhookConfig) error

	// DeleteWebhooks clears event host registrations on the device.
	DeleteWebhooks(ctx context.Context, dev *device.Device, creds device.Credentials) error

	// SupportsWebhooks reports whether this vendor/device can push events.
	SupportsWebhooks(dev *device.Device) bool

	// DiscoverDevices scans for reachable devices of this vendor family.
	DiscoverDevices(ctx context.Context) ([]DeviceInfo, error)
}
