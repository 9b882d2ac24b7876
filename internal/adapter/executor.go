package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/secrets"
)

// DeviceStore is the slice of the device registry the executor needs.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	SetStatus(ctx context.Context, id string, status device.Status) error
}

// Metrics receives telemetry points for executed operations.
// Satisfied by the influxdb client; nil disables recording.
type Metrics interface {
	WriteCommandLatency(deviceID, adapterKind, command string, durationMs float64, success bool)
	WriteDeviceHealth(deviceID string, online bool, responseMs float64)
}

// Executor is the single entry point for talking to physical devices.
//
// It owns the credential boundary: devices are loaded with sealed blobs,
// unsealed here immediately before the adapter call, and the plaintext is
// discarded when the call returns. It also enforces the IsActive gate and
// records latency telemetry for every command.
type Executor struct {
	devices  DeviceStore
	registry *Registry
	box      *secrets.Box
	metrics  Metrics
	logger   device.Logger

	// defaultTimeout applies when a command carries no timeout of its own.
	defaultTimeout time.Duration
}

// NewExecutor creates a command executor.
// metrics may be nil. box may be nil only in tests using stub devices.
func NewExecutor(devices DeviceStore, registry *Registry, box *secrets.Box, defaultTimeout time.Duration) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = defaultCommandTimeout
	}
	return &Executor{
		devices:        devices,
		registry:       registry,
		box:            box,
		logger:         noopLogger{},
		defaultTimeout: defaultTimeout,
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger device.Logger) {
	e.logger = logger
}

// SetMetrics sets the telemetry sink for the executor.
func (e *Executor) SetMetrics(m Metrics) {
	e.metrics = m
}

// ExecuteCommand runs a command against a device.
//
// The device must exist and be active. Adapter errors propagate unchanged
// so callers can branch on the adapter sentinels.
func (e *Executor) ExecuteCommand(ctx context.Context, deviceID string, cmd Command) (*Result, error) {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !dev.IsActive {
		return nil, device.ErrDeviceInactive
	}

	creds, err := e.unseal(dev)
	if err != nil {
		return nil, err
	}

	if cmd.Timeout <= 0 {
		cmd.Timeout = e.defaultTimeout
	}

	a := e.registry.SelectAdapter(dev)

	start := time.Now()
	result, err := a.SendCommand(ctx, dev, creds, cmd)
	elapsed := time.Since(start)

	success := err == nil
	e.logger.Info("command executed",
		"device_id", deviceID,
		"adapter", string(a.Kind()),
		"command", cmd.Name,
		"duration_ms", elapsed.Milliseconds(),
		"success", success,
	)
	if e.metrics != nil {
		e.metrics.WriteCommandLatency(deviceID, string(a.Kind()), cmd.Name,
			float64(elapsed.Microseconds())/1000.0, success)
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}

// TestConnection probes a device and persists the observed status.
// Never returns an error; unknown devices and unseal failures are false.
func (e *Executor) TestConnection(ctx context.Context, deviceID string) bool {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return false
	}

	creds, err := e.unseal(dev)
	if err != nil {
		return false
	}

	a := e.registry.SelectAdapter(dev)
	ok := a.TestConnection(ctx, dev, creds)

	status := device.StatusOffline
	if ok {
		status = device.StatusOnline
	}
	if err := e.devices.SetStatus(ctx, deviceID, status); err != nil {
		e.logger.Warn("persisting connection status failed", "device_id", deviceID, "error", err)
	}

	return ok
}

// ProbeHealth asks the adapter for a health report and persists the
// resulting status transition.
func (e *Executor) ProbeHealth(ctx context.Context, deviceID string) (*Health, error) {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	creds, err := e.unseal(dev)
	if err != nil {
		return nil, err
	}

	a := e.registry.SelectAdapter(dev)
	health, err := a.GetDeviceHealth(ctx, dev, creds)
	if err != nil {
		return nil, err
	}

	if err := e.devices.SetStatus(ctx, deviceID, health.Status); err != nil {
		e.logger.Warn("persisting health status failed", "device_id", deviceID, "error", err)
	}
	if e.metrics != nil {
		e.metrics.WriteDeviceHealth(deviceID, health.Status == device.StatusOnline,
			float64(health.ResponseTime.Microseconds())/1000.0)
	}

	return health, nil
}

// GetDeviceInfo reads identity information from a device.
func (e *Executor) GetDeviceInfo(ctx context.Context, deviceID string) (*DeviceInfo, error) {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	creds, err := e.unseal(dev)
	if err != nil {
		return nil, err
	}

	return e.registry.SelectAdapter(dev).GetDeviceInfo(ctx, dev, creds)
}

// PushConfiguration sends a configuration to a device.
// Implements device.ConfigPusher for the template service.
func (e *Executor) PushConfiguration(ctx context.Context, dev *device.Device, cfg *device.Configuration) error {
	creds, err := e.unseal(dev)
	if err != nil {
		return err
	}

	return e.registry.SelectAdapter(dev).UpdateConfiguration(ctx, dev, creds, cfg)
}

// SupportsWebhooks reports whether the device's adapter can push events.
func (e *Executor) SupportsWebhooks(ctx context.Context, deviceID string) (bool, error) {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return false, err
	}
	return e.registry.SelectAdapter(dev).SupportsWebhooks(dev), nil
}

// ConfigureEventHost registers a callback URL on a device.
func (e *Executor) ConfigureEventHost(ctx context.Context, deviceID string, cfg WebhookConfig) error {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.IsActive {
		return device.ErrDeviceInactive
	}

	creds, err := e.unseal(dev)
	if err != nil {
		return err
	}

	a := e.registry.SelectAdapter(dev)
	if !a.SupportsWebhooks(dev) {
		return ErrUnsupported
	}

	return a.ConfigureEventHost(ctx, dev, creds, cfg)
}

// DeleteWebhooks clears event host registrations on a device.
func (e *Executor) DeleteWebhooks(ctx context.Context, deviceID string) error {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	creds, err := e.unseal(dev)
	if err != nil {
		return err
	}

	return e.registry.SelectAdapter(dev).DeleteWebhooks(ctx, dev, creds)
}

// Discover runs discovery across all vendor adapters.
func (e *Executor) Discover(ctx context.Context) []DeviceInfo {
	return e.registry.DiscoverAll(ctx)
}

// unseal opens the device's credential blob. A device with no credentials
// yields empty credentials; a blob that fails to open is an error.
func (e *Executor) unseal(dev *device.Device) (device.Credentials, error) {
	if len(dev.CredentialsSealed) == 0 {
		return device.Credentials{}, nil
	}
	if e.box == nil {
		return device.Credentials{}, ErrCredentialsUnavailable
	}

	plain, err := e.box.Open(dev.CredentialsSealed)
	if err != nil {
		return device.Credentials{}, fmt.Errorf("%w: %w", ErrCredentialsUnavailable, err)
	}

	var creds device.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return device.Credentials{}, fmt.Errorf("%w: %w", ErrCredentialsUnavailable, err)
	}

	return creds, nil
}
