package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
)

// Dahua speaks the CGI API exposed by Dahua access controllers.
// Authentication is HTTP digest.
type Dahua struct {
	http *vendorHTTP
}

// NewDahua creates a Dahua CGI adapter.
func NewDahua() *Dahua {
	return &Dahua{http: newVendorHTTP(authDigest)}
}

// Kind returns KindDahua.
func (a *Dahua) Kind() Kind { return KindDahua }

var dahuaCommands = map[string]struct {
	method string
	path   string
}{
	"addUser":    {http.MethodPost, "/cgi-bin/recordUpdater.cgi?action=insert&name=AccessControlCard"},
	"updateUser": {http.MethodPost, "/cgi-bin/recordUpdater.cgi?action=update&name=AccessControlCard"},
	"deleteUser": {http.MethodPost, "/cgi-bin/recordUpdater.cgi?action=remove&name=AccessControlCard"},
	"addCard":    {http.MethodPost, "/cgi-bin/recordUpdater.cgi?action=insert&name=AccessControlCard"},
	"deleteCard": {http.MethodPost, "/cgi-bin/recordUpdater.cgi?action=remove&name=AccessControlCard"},
	"addFace":    {http.MethodPost, "/cgi-bin/FaceInfoManager.cgi?action=add"},
	"deleteFace": {http.MethodPost, "/cgi-bin/FaceInfoManager.cgi?action=remove"},
	"unlock":     {http.MethodGet, "/cgi-bin/accessControl.cgi?action=openDoor&channel=1"},
	"reboot":     {http.MethodGet, "/cgi-bin/magicBox.cgi?action=reboot"},
}

// SendCommand executes a command via the corresponding CGI endpoint.
func (a *Dahua) SendCommand(ctx context.Context, dev *device.Device, creds device.Credentials, cmd Command) (*Result, error) {
	ep, ok := dahuaCommands[cmd.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}

	var payload any
	if ep.method == http.MethodPost && cmd.Parameters != nil {
		payload = cmd.Parameters
	}

	data, status, err := a.http.doJSON(ctx, ep.method, baseURL(dev)+ep.path, creds, payload, cmd.Timeout)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrCommandFailed, cmd.Name, status)
	}

	// CGI endpoints answer "OK" or "Error" as plain text
	if raw, ok := data["raw"].(string); ok && strings.HasPrefix(strings.TrimSpace(raw), "Error") {
		return nil, fmt.Errorf("%w: %s: %s", ErrCommandFailed, cmd.Name, strings.TrimSpace(raw))
	}

	return &Result{Success: true, Data: data}, nil
}

// TestConnection probes the magicBox serial endpoint. Never returns an error.
func (a *Dahua) TestConnection(ctx context.Context, dev *device.Device, creds device.Credentials) bool {
	_, status, err := a.http.do(ctx, http.MethodGet,
		baseURL(dev)+"/cgi-bin/magicBox.cgi?action=getSerialNo", creds, nil, 5*time.Second)
	return err == nil && status >= 200 && status < 300
}

// GetDeviceInfo reads identity fields from magicBox.
func (a *Dahua) GetDeviceInfo(ctx context.Context, dev *device.Device, creds device.Credentials) (*DeviceInfo, error) {
	data, status, err := a.http.do(ctx, http.MethodGet,
		baseURL(dev)+"/cgi-bin/magicBox.cgi?action=getSystemInfo", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: getSystemInfo returned HTTP %d", ErrCommandFailed, status)
	}

	info := &DeviceInfo{Manufacturer: "Dahua", Host: dev.Host}
	for _, line := range strings.Split(string(data), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		switch key {
		case "serialNumber":
			info.SerialNumber = value
		case "deviceType":
			info.Model = value
		case "hardwareVersion":
			info.FirmwareVersion = value
		}
	}

	return info, nil
}

// GetDeviceHealth probes the device and maps the result to a status.
func (a *Dahua) GetDeviceHealth(ctx context.Context, dev *device.Device, creds device.Credentials) (*Health, error) {
	start := time.Now()
	data, status, err := a.http.do(ctx, http.MethodGet,
		baseURL(dev)+"/cgi-bin/magicBox.cgi?action=getUpTime", creds, nil, 0)
	elapsed := time.Since(start)

	if err != nil {
		return &Health{Status: device.StatusOffline, ResponseTime: elapsed}, nil //nolint:nilerr // offline is a report, not a failure
	}
	if status != http.StatusOK {
		return &Health{
			Status:       device.StatusFault,
			ResponseTime: elapsed,
			Issues:       []string{fmt.Sprintf("uptime endpoint returned HTTP %d", status)},
		}, nil
	}

	health := &Health{Status: device.StatusOnline, ResponseTime: elapsed}
	// Response shape: "info.LastRebootTime=...\ninfo.TotalUpTime=12345"
	for _, line := range strings.Split(string(data), "\n") {
		if _, value, found := strings.Cut(strings.TrimSpace(line), "info.TotalUpTime="); found {
			var seconds int
			if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil {
				health.Uptime = time.Duration(seconds) * time.Second
			}
		}
	}

	return health, nil
}

// GetConfiguration reads the access control parameter table.
func (a *Dahua) GetConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials) (map[string]any, error) {
	data, status, err := a.http.do(ctx, http.MethodGet,
		baseURL(dev)+"/cgi-bin/configManager.cgi?action=getConfig&name=AccessControl", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: getConfig returned HTTP %d", ErrCommandFailed, status)
	}

	// Key=value lines into a flat map
	cfg := make(map[string]any)
	for _, line := range strings.Split(string(data), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if found {
			cfg[key] = value
		}
	}
	return cfg, nil
}

// UpdateConfiguration pushes configuration values via configManager.
func (a *Dahua) UpdateConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials, cfg *device.Configuration) error {
	params := []string{
		fmt.Sprintf("AccessControl[0].AntiPassback=%t", cfg.AntiPassback),
	}
	if cfg.DoorOpenTimeout > 0 {
		params = append(params, fmt.Sprintf("AccessControl[0].UnlockHoldInterval=%d", cfg.DoorOpenTimeout))
	}
	if cfg.NTPServer != nil {
		params = append(params, "NTP.Address="+*cfg.NTPServer)
	}
	if cfg.Timezone != nil {
		params = append(params, "NTP.TimeZone="+*cfg.Timezone)
	}

	url := baseURL(dev) + "/cgi-bin/configManager.cgi?action=setConfig&" + strings.Join(params, "&")
	_, status, err := a.http.do(ctx, http.MethodGet, url, creds, nil, 0)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: setConfig returned HTTP %d", ErrCommandFailed, status)
	}
	return nil
}

// GetWebhookConfigurations is not available on Dahua controllers; event
// subscription state cannot be read back over CGI.
func (a *Dahua) GetWebhookConfigurations(context.Context, *device.Device, device.Credentials) ([]WebhookConfig, error) {
	return nil, ErrUnsupported
}

// ConfigureEventHost is not available over CGI; Dahua pushes events through
// a long-poll subscription the engine does not hold open.
func (a *Dahua) ConfigureEventHost(context.Context, *device.Device, device.Credentials, WebhookConfig) error {
	return ErrUnsupported
}

// DeleteWebhooks is a no-op counterpart to ConfigureEventHost.
func (a *Dahua) DeleteWebhooks(context.Context, *device.Device, device.Credentials) error {
	return ErrUnsupported
}

// SupportsWebhooks is false: see ConfigureEventHost.
func (a *Dahua) SupportsWebhooks(*device.Device) bool { return false }

// DiscoverDevices is not implemented for CGI devices.
func (a *Dahua) DiscoverDevices(context.Context) ([]DeviceInfo, error) {
	return nil, ErrUnsupported
}
