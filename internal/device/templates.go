package device

import (
	"context"
	"errors"
	"fmt"
)

// ConfigPusher sends a configuration to the physical device.
// Implemented by the adapter executor; nil means persist-only mode.
type ConfigPusher interface {
	PushConfiguration(ctx context.Context, dev *Device, cfg *Configuration) error
}

// ApplyResult reports the outcome of a template application.
type ApplyResult struct {
	DeviceID   string `json:"device_id"`
	TemplateID string `json:"template_id,omitempty"`

	// Matched is the number of templates whose scope matched the device.
	// Only populated by AutoApply.
	Matched int `json:"matched"`

	// Applied is false when AutoApply found no matching template.
	// A zero-match auto-apply is a recorded no-op, not an error.
	Applied bool `json:"applied"`

	Configuration *Configuration `json:"configuration,omitempty"`
}

// Templates applies configuration templates to devices.
//
// Application is never destructive: template defaults only fill values the
// device configuration has not set; existing device-specific values win.
type Templates struct {
	devices   Repository
	configs   ConfigurationRepository
	templates TemplateRepository
	pusher    ConfigPusher
	logger    Logger
}

// NewTemplates creates a template application service.
// pusher may be nil, in which case configurations are persisted but not
// pushed to the device.
func NewTemplates(devices Repository, configs ConfigurationRepository, templates TemplateRepository, pusher ConfigPusher) *Templates {
	return &Templates{
		devices:   devices,
		configs:   configs,
		templates: templates,
		pusher:    pusher,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (t *Templates) SetLogger(logger Logger) {
	t.logger = logger
}

// Apply merges a template's defaults into a device's configuration.
//
// An existing configuration keeps every value it already has; defaults only
// fill gaps. A device without a configuration gets one created from the
// defaults. The merged configuration is persisted and, when a pusher is
// configured, sent to the device.
func (t *Templates) Apply(ctx context.Context, templateID, deviceID string) (*ApplyResult, error) {
	tpl, err := t.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	return t.apply(ctx, tpl, deviceID)
}

// AutoApply selects the best matching template for a device and applies it.
//
// Candidates are the organization's templates scoped to the device's exact
// manufacturer and model (unscoped templates match anything), ordered by
// priority descending then name ascending. The first candidate is applied.
// Zero matches is a recorded no-op.
func (t *Templates) AutoApply(ctx context.Context, deviceID string) (*ApplyResult, error) {
	dev, err := t.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	manufacturer := ""
	if dev.Manufacturer != nil {
		manufacturer = *dev.Manufacturer
	}
	model := ""
	if dev.Model != nil {
		model = *dev.Model
	}

	candidates, err := t.templates.ListMatching(ctx, dev.OrganizationID, manufacturer, model)
	if err != nil {
		return nil, fmt.Errorf("listing matching templates: %w", err)
	}

	if len(candidates) == 0 {
		t.logger.Info("auto-apply found no matching template",
			"device_id", deviceID, "manufacturer", manufacturer, "model", model)
		return &ApplyResult{DeviceID: deviceID, Matched: 0, Applied: false}, nil
	}

	result, err := t.apply(ctx, &candidates[0], deviceID)
	if err != nil {
		return nil, err
	}
	result.Matched = len(candidates)

	return result, nil
}

func (t *Templates) apply(ctx context.Context, tpl *Template, deviceID string) (*ApplyResult, error) {
	dev, err := t.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !dev.IsActive {
		return nil, ErrDeviceInactive
	}

	cfg, err := t.configs.GetByDevice(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, ErrConfigurationNotFound) {
			return nil, err
		}
		cfg = &Configuration{DeviceID: deviceID}
	}

	mergeDefaults(cfg, tpl.Defaults)

	if err := t.configs.Upsert(ctx, cfg); err != nil {
		return nil, fmt.Errorf("persisting configuration: %w", err)
	}

	if t.pusher != nil {
		if err := t.pusher.PushConfiguration(ctx, dev, cfg); err != nil {
			return nil, fmt.Errorf("pushing configuration to device: %w", err)
		}
	}

	t.logger.Info("template applied",
		"device_id", deviceID, "template_id", tpl.ID, "template", tpl.Name)

	return &ApplyResult{
		DeviceID:      deviceID,
		TemplateID:    tpl.ID,
		Matched:       1,
		Applied:       true,
		Configuration: cfg,
	}, nil
}

// mergeDefaults fills unset configuration values from template defaults.
// Set values are never overwritten. Unknown keys land in Extra, again
// without clobbering existing entries.
func mergeDefaults(cfg *Configuration, defaults map[string]any) {
	for key, value := range defaults {
		switch key {
		case "ntp_server":
			if s, ok := value.(string); ok && cfg.NTPServer == nil {
				cfg.NTPServer = &s
			}
		case "timezone":
			if s, ok := value.(string); ok && cfg.Timezone == nil {
				cfg.Timezone = &s
			}
		case "offline_mode":
			if b, ok := value.(bool); ok && !cfg.OfflineMode {
				cfg.OfflineMode = b
			}
		case "event_buffer_size":
			if n, ok := asInt(value); ok && cfg.EventBufferSize == 0 {
				cfg.EventBufferSize = n
			}
		case "heartbeat_interval":
			if n, ok := asInt(value); ok && cfg.HeartbeatInterval == 0 {
				cfg.HeartbeatInterval = n
			}
		case "door_open_timeout":
			if n, ok := asInt(value); ok && cfg.DoorOpenTimeout == 0 {
				cfg.DoorOpenTimeout = n
			}
		case "anti_passback":
			if b, ok := value.(bool); ok && !cfg.AntiPassback {
				cfg.AntiPassback = b
			}
		default:
			if cfg.Extra == nil {
				cfg.Extra = make(map[string]any)
			}
			if _, exists := cfg.Extra[key]; !exists {
				cfg.Extra[key] = value
			}
		}
	}
}

// asInt converts JSON numbers (float64 after unmarshalling) and native ints.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
