package adapter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
)

// Hikvision speaks the ISAPI protocol used by Hikvision access terminals
// and door controllers. Authentication is HTTP digest.
type Hikvision struct {
	http *vendorHTTP
}

// NewHikvision creates a Hikvision ISAPI adapter.
func NewHikvision() *Hikvision {
	return &Hikvision{http: newVendorHTTP(authDigest)}
}

// Kind returns KindHikvision.
func (a *Hikvision) Kind() Kind { return KindHikvision }

// hikvisionCommands maps vendor-neutral command names to ISAPI endpoints.
var hikvisionCommands = map[string]struct {
	method string
	path   string
}{
	"addUser":    {http.MethodPost, "/ISAPI/AccessControl/UserInfo/Record?format=json"},
	"updateUser": {http.MethodPut, "/ISAPI/AccessControl/UserInfo/Modify?format=json"},
	"deleteUser": {http.MethodPut, "/ISAPI/AccessControl/UserInfo/Delete?format=json"},
	"addFace":    {http.MethodPost, "/ISAPI/Intelligent/FDLib/FaceDataRecord?format=json"},
	"deleteFace": {http.MethodPut, "/ISAPI/Intelligent/FDLib/FDSearch/Delete?format=json"},
	"addCard":    {http.MethodPost, "/ISAPI/AccessControl/CardInfo/Record?format=json"},
	"deleteCard": {http.MethodPut, "/ISAPI/AccessControl/CardInfo/Delete?format=json"},
	"unlock":     {http.MethodPut, "/ISAPI/AccessControl/RemoteControl/door/1"},
	"reboot":     {http.MethodPut, "/ISAPI/System/reboot"},
}

// SendCommand executes a command via the corresponding ISAPI endpoint.
func (a *Hikvision) SendCommand(ctx context.Context, dev *device.Device, creds device.Credentials, cmd Command) (*Result, error) {
	ep, ok := hikvisionCommands[cmd.Name]
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

	// ISAPI signals application errors inside a 200 body
	if sub, ok := data["statusCode"].(float64); ok && sub != 1 {
		msg, _ := data["statusString"].(string)
		return nil, fmt.Errorf("%w: %s: %s (code %d)", ErrCommandFailed, cmd.Name, msg, int(sub))
	}

	return &Result{Success: true, Data: data}, nil
}

// TestConnection probes the ISAPI status endpoint. Never returns an error.
func (a *Hikvision) TestConnection(ctx context.Context, dev *device.Device, creds device.Credentials) bool {
	_, status, err := a.http.do(ctx, http.MethodGet, baseURL(dev)+"/ISAPI/System/status", creds, nil, 5*time.Second)
	return err == nil && status >= 200 && status < 300
}

// GetDeviceInfo reads /ISAPI/System/deviceInfo.
func (a *Hikvision) GetDeviceInfo(ctx context.Context, dev *device.Device, creds device.Credentials) (*DeviceInfo, error) {
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/ISAPI/System/deviceInfo?format=json", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: deviceInfo returned HTTP %d", ErrCommandFailed, status)
	}

	info := &DeviceInfo{Manufacturer: "Hikvision", Host: dev.Host}
	if body, ok := data["DeviceInfo"].(map[string]any); ok {
		data = body
	}
	if v, ok := data["serialNumber"].(string); ok {
		info.SerialNumber = v
	}
	if v, ok := data["model"].(string); ok {
		info.Model = v
	}
	if v, ok := data["firmwareVersion"].(string); ok {
		info.FirmwareVersion = v
	}
	if v, ok := data["macAddress"].(string); ok {
		info.MACAddress = v
	}

	return info, nil
}

// GetDeviceHealth probes the device and maps the result to a status.
func (a *Hikvision) GetDeviceHealth(ctx context.Context, dev *device.Device, creds device.Credentials) (*Health, error) {
	start := time.Now()
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/ISAPI/System/status", creds, nil, 0)
	elapsed := time.Since(start)

	if err != nil {
		return &Health{Status: device.StatusOffline, ResponseTime: elapsed}, nil //nolint:nilerr // offline is a report, not a failure
	}
	if status != http.StatusOK {
		return &Health{
			Status:       device.StatusFault,
			ResponseTime: elapsed,
			Issues:       []string{fmt.Sprintf("status endpoint returned HTTP %d", status)},
		}, nil
	}

	health := &Health{Status: device.StatusOnline, ResponseTime: elapsed}
	if up, ok := data["deviceUpTime"].(float64); ok {
		health.Uptime = time.Duration(up) * time.Second
	}

	return health, nil
}

// GetConfiguration reads the device's time and access parameters.
func (a *Hikvision) GetConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials) (map[string]any, error) {
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/ISAPI/AccessControl/AcsCfg?format=json", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: AcsCfg returned HTTP %d", ErrCommandFailed, status)
	}
	return data, nil
}

// UpdateConfiguration pushes configuration values to the device.
func (a *Hikvision) UpdateConfiguration(ctx context.Context, dev *device.Device, creds device.Credentials, cfg *device.Configuration) error {
	payload := map[string]any{"AcsCfg": hikvisionConfigBody(cfg)}

	_, status, err := a.http.doJSON(ctx, http.MethodPut, baseURL(dev)+"/ISAPI/AccessControl/AcsCfg?format=json", creds, payload, 0)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: AcsCfg update returned HTTP %d", ErrCommandFailed, status)
	}
	return nil
}

func hikvisionConfigBody(cfg *device.Configuration) map[string]any {
	body := map[string]any{
		"antiPassback": cfg.AntiPassback,
	}
	if cfg.DoorOpenTimeout > 0 {
		body["doorOpenDuration"] = cfg.DoorOpenTimeout
	}
	if cfg.HeartbeatInterval > 0 {
		body["keepAliveInterval"] = cfg.HeartbeatInterval
	}
	if cfg.NTPServer != nil {
		body["ntpServer"] = *cfg.NTPServer
	}
	if cfg.Timezone != nil {
		body["timeZone"] = *cfg.Timezone
	}
	for k, v := range cfg.Extra {
		body[k] = v
	}
	return body
}

// GetWebhookConfigurations lists HTTP event hosts registered on the device.
func (a *Hikvision) GetWebhookConfigurations(ctx context.Context, dev *device.Device, creds device.Credentials) ([]WebhookConfig, error) {
	data, status, err := a.http.doJSON(ctx, http.MethodGet, baseURL(dev)+"/ISAPI/Event/notification/httpHosts?format=json", creds, nil, 0)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: httpHosts returned HTTP %d", ErrCommandFailed, status)
	}

	var configs []WebhookConfig
	list, _ := data["HttpHostNotificationList"].(map[string]any)
	hosts, _ := list["HttpHostNotification"].([]any)
	for _, h := range hosts {
		entry, ok := h.(map[string]any)
		if !ok {
			continue
		}
		wc := WebhookConfig{Protocol: "HTTP", Format: "JSON"}
		if v, ok := entry["id"].(string); ok {
			wc.HostID = v
		} else if n, ok := entry["id"].(float64); ok {
			wc.HostID = fmt.Sprintf("%d", int(n))
		}
		if v, ok := entry["url"].(string); ok {
			wc.URL = v
		}
		if v, ok := entry["protocolType"].(string); ok {
			wc.Protocol = v
		}
		if v, ok := entry["parameterFormatType"].(string); ok {
			wc.Format = v
		}
		configs = append(configs, wc)
	}

	return configs, nil
}

// ConfigureEventHost registers a callback URL in the device's HTTP host table.
func (a *Hikvision) ConfigureEventHost(ctx context.Context, dev *device.Device, creds device.Credentials, cfg WebhookConfig) error {
	payload := map[string]any{
		"HttpHostNotification": map[string]any{
			"id":                       cfg.HostID,
			"url":                      cfg.URL,
			"protocolType":             cfg.Protocol,
			"parameterFormatType":      cfg.Format,
			"httpAuthenticationMethod": "none",
		},
	}

	_, status, err := a.http.doJSON(ctx, http.MethodPut,
		baseURL(dev)+"/ISAPI/Event/notification/httpHosts/"+cfg.HostID+"?format=json", creds, payload, 0)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: event host registration returned HTTP %d", ErrCommandFailed, status)
	}
	return nil
}

// DeleteWebhooks clears the device's HTTP host table.
func (a *Hikvision) DeleteWebhooks(ctx context.Context, dev *device.Device, creds device.Credentials) error {
	_, status, err := a.http.do(ctx, http.MethodDelete, baseURL(dev)+"/ISAPI/Event/notification/httpHosts?format=json", creds, nil, 0)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: event host deletion returned HTTP %d", ErrCommandFailed, status)
	}
	return nil
}

// SupportsWebhooks is true: ISAPI devices push events to HTTP hosts.
func (a *Hikvision) SupportsWebhooks(*device.Device) bool { return true }

// DiscoverDevices is not implemented for ISAPI; Hikvision discovery uses the
// proprietary SADP multicast protocol, which needs raw sockets.
func (a *Hikvision) DiscoverDevices(context.Context) ([]DeviceInfo, error) {
	return nil, ErrUnsupported
}
