package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
)

// ZKTeco speaks the HTTP API exposed by ZKTeco standalone terminals and the
// BioSecurity middleware. Authentication is HTTP basic.
type ZKTeco struct {
	http *vendorHTTP
}

// NewZKTeco creates a ZKTeco adapter.
func NewZKTeco() *ZKTeco {
	return &ZKTeco{http: newVendorHTTP(authBasic)}
}

// Kind returns KindZKTeco.
func (a *ZKTeco) Kind() Kind { return KindZKTeco }

var zktecoCommands = map[string]struct {
	method string
	path   string
}{
	"addUser":        {http.MethodPost, "/api/v1/users"},
	"updateUser":     {http.MethodPut, "/api/v1/users"},
	"deleteUser":     {http.MethodDelete, "/api/v1/users"},
	"addFace":        {http.MethodPost, "/api/v1/biometrics/face"},
	"deleteFace":     {http.MethodDelete, "/api/v1/biometrics/face"},
	"addFingerprint": {http.MethodPost, "/api/v1/biometrics/fingerprint"},
	"addCard":        {http.MethodPost, "/api/v1/cards"},
	"deleteCard":     {http.MethodDelete, "/api/v1/cards"},
	"unlock":         {http.MethodPost, "/api/v1/door/unlock"},
	"reboot":         {http.MethodPost, "/api/v1/system/reboot"},
}

// SendCommand executes a command against the terminal's HTTP API.
func (a *ZKTeco) SendCommand(ctx context.Context, dev *device.Device, creds device.Credentials, cmd Command) (*Result, error) {
	ep, ok := zktecoCommands[cmd.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}

	var payload any
	if cmd.Parameters != nil {
		payload = cmd.Parameters
	}

	data, status, err := a.http.doJSON(ctx, ep.method, baseURL(dev)+ep.path, creds, payload, cmd.Timeout)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrCommandFailed, cmd.Name, status)
	}

	if code, ok := data["code"].(float64); ok && code != 0 {
		msg, _ := data["message"].(string)
		return nil, fmt.Errorf("%w: %s: %s (code %d)", ErrCommandFailed, cmd.Name, msg, int(code))
	}

	return &Result{Success: true, Data: data}, nil
}

// TestConnection probes the terminal's info endpoint. Never returns an error.
func (a *ZKTeco) TestConnection(ctx context.Context, dev *device.Device, creds device.Credentials) bool {
	_, status, err := a.http.do(ctx, http.MethodGet, baseURL(dev)+"/api/v1/system/info", creds, nil, 5*time.Second)
	return err == nil && status >= 200 && status < 300
}

// GetDeviceInfo reads the terminal's system info.
func (a *ZKTeco) GetDeviceInfo(ctx context.Context, dev *device.Device, creds device.Credentials) (*DeviceInfo, error) {
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/api/v1/system/info", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: system info returned HTTP %d", ErrCommandFailed, status)
	}

	info := &DeviceInfo{Manufacturer: "ZKTeco", Host: dev.Host}
	if v, ok := data["serialNumber"].(string); ok {
		info.SerialNumber = v
	}
	if v, ok := data["sn"].(string); ok && info.SerialNumber == "" {
		info.SerialNumber = v
	}
	if v, ok := data["model"].(string); ok {
		info.Model = v
	}
	if v, ok := data["firmware"].(string); ok {
		info.FirmwareVersion = v
	}

	return info, nil
}

// GetDeviceHealth probes the terminal and maps the result to a status.
func (a *ZKTeco) GetDeviceHealth(ctx context.Context, dev *device.Device, creds device.Credentials) (*Health, error) {
	start := time.Now()
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/api/v1/system/health", creds, nil, 0)
	elapsed := time.Since(start)

	if err != nil {
		return &Health{Status: device.StatusOffline, ResponseTime: elapsed}, nil //nolint:nilerr // offline is a report, not a failure
	}
	if status != http.StatusOK {
		return &Health{
			Status:       device.StatusFault,
			ResponseTime: elapsed,
			Issues:       []string{fmt.Sprintf("health endpoint returned HTTP %d", status)},
		}, nil
	}

	health := &Health{Status: device.StatusOnline, ResponseTime: elapsed}
	if up, ok := data["uptimeSeconds"].(float64); ok {
		health.Uptime = time.Duration(up) * time.Second
	}
	if faults, ok := data["faults"].([]any); ok {
		for _, f := range faults {
			if s, ok := f.(string); ok {
				health.Issues = append(health.Issues, s)
			}
		}
		if len(health.Issues) > 0 {
			health.Status = device.StatusFault
		}
	}

	return health, nil
}

// GetConfiguration reads the terminal's parameter set.
func (a *ZKTeco) GetConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials) (map[string]any, error) {
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/api/v1/config", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: config read returned HTTP %d", ErrCommandFailed, status)
	}
	return data, nil
}

// UpdateConfiguration pushes configuration values to the terminal.
func (a *ZKTeco) UpdateConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials, cfg *device.Configuration) error {
	payload := map[string]any{
		"offlineMode":     cfg.OfflineMode,
		"antiPassback":    cfg.AntiPassback,
		"eventBufferSize": cfg.EventBufferSize,
	}
	if cfg.HeartbeatInterval > 0 {
		payload["heartbeatInterval"] = cfg.HeartbeatInterval
	}
	if cfg.DoorOpenTimeout > 0 {
		payload["doorOpenTimeout"] = cfg.DoorOpenTimeout
	}
	if cfg.NTPServer != nil {
		payload["ntpServer"] = *cfg.NTPServer
	}
	if cfg.Timezone != nil {
		payload["timezone"] = *cfg.Timezone
	}
	for k, v := range cfg.Extra {
		payload[k] = v
	}

	_, status, err := a.http.doJSON(ctx, http.MethodPut, baseURL(dev)+"/api/v1/config", creds, payload, 0)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: config update returned HTTP %d", ErrCommandFailed, status)
	}
	return nil
}

// GetWebhookConfigurations lists push subscriptions on the terminal.
func (a *ZKTeco) GetWebhookConfigurations(ctx context.Context, dev *device.Device, creds device.Credentials) ([]WebhookConfig, error) {
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/api/v1/push/subscriptions", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: subscriptions returned HTTP %d", ErrCommandFailed, status)
	}

	var configs []WebhookConfig
	subs, _ := data["subscriptions"].([]any)
	for _, s := range subs {
		entry, ok := s.(map[string]any)
		if !ok {
			continue
		}
		wc := WebhookConfig{Protocol: "HTTP", Format: "JSON"}
		if v, ok := entry["id"].(string); ok {
			wc.HostID = v
		}
		if v, ok := entry["url"].(string); ok {
			wc.URL = v
		}
		configs = append(configs, wc)
	}

	return configs, nil
}

// ConfigureEventHost registers a push subscription on the terminal.
func (a *ZKTeco) ConfigureEventHost(ctx context.Context, dev *device.Device, creds device.Credentials, cfg WebhookConfig) error {
	payload := map[string]any{
		"id":     cfg.HostID,
		"url":    cfg.URL,
		"format": cfg.Format,
	}
	if len(cfg.EventTypes) > 0 {
		payload["eventTypes"] = cfg.EventTypes
	}

	_, status, err := a.http.doJSON(ctx, http.MethodPost, baseURL(dev)+"/api/v1/push/subscriptions", creds, payload, 0)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: push subscription returned HTTP %d", ErrCommandFailed, status)
	}
	return nil
}

// DeleteWebhooks removes all push subscriptions from the terminal.
func (a *ZKTeco) DeleteWebhooks(ctx context.Context, dev *device.Device, creds device.Credentials) error {
	_, status, err := a.http.do(ctx, http.MethodDelete, baseURL(dev)+"/api/v1/push/subscriptions", creds, nil, 0)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: subscription deletion returned HTTP %d", ErrCommandFailed, status)
	}
	return nil
}

// SupportsWebhooks is true: ZKTeco terminals push events over HTTP.
func (a *ZKTeco) SupportsWebhooks(*device.Device) bool { return true }

// DiscoverDevices is not implemented; ZKTeco discovery relies on UDP
// broadcast that is routinely blocked on segmented fleet networks.
func (a *ZKTeco) DiscoverDevices(context.Context) ([]DeviceInfo, error) {
	return nil, ErrUnsupported
}
