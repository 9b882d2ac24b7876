package device

import (
	"fmt"
	"strings"
)

// Validation constants.
const (
	maxNameLength = 100
	maxHostLength = 253 // RFC 1035 FQDN limit, also covers IP literals
	maxPort       = 65535

	// Size limits for template/configuration maps to prevent abuse
	// via oversized JSON payloads.
	maxExtraKeys    = 50
	maxDefaultsKeys = 50
)

// Pre-computed validation sets for O(1) lookups instead of O(n) linear search.
var (
	validProtocols   map[Protocol]struct{}
	validDeviceTypes map[DeviceType]struct{}
	validStatuses    map[Status]struct{}
)

func init() {
	// Build validation sets once at startup
	validProtocols = make(map[Protocol]struct{}, len(AllProtocols()))
	for _, p := range AllProtocols() {
		validProtocols[p] = struct{}{}
	}

	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}

	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateDevice performs comprehensive validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if d.OrganizationID == "" {
		return fmt.Errorf("%w: organization_id is required", ErrInvalidDevice)
	}

	if err := ValidateHost(d.Host); err != nil {
		return err
	}

	if d.Port < 1 || d.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, d.Port)
	}

	if err := ValidateProtocol(d.Protocol); err != nil {
		return err
	}

	if err := ValidateDeviceType(d.Type); err != nil {
		return err
	}

	if d.Status != "" {
		if _, ok := validStatuses[d.Status]; !ok {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
		}
	}

	return nil
}

// ValidateName checks a device or template name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateHost checks a device host (hostname or IP literal).
func ValidateHost(host string) error {
	host = strings.TrimSpace(host)
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidHost)
	}
	if len(host) > maxHostLength {
		return fmt.Errorf("%w: host exceeds %d characters", ErrInvalidHost, maxHostLength)
	}
	if strings.ContainsAny(host, " /\\") {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}

// ValidateProtocol checks a protocol value against the known set.
func ValidateProtocol(p Protocol) error {
	if _, ok := validProtocols[p]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, p)
	}
	return nil
}

// ValidateDeviceType checks a device type value against the known set.
func ValidateDeviceType(t DeviceType) error {
	if _, ok := validDeviceTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, t)
	}
	return nil
}

// ValidateTemplate performs validation on a configuration template.
func ValidateTemplate(t *Template) error {
	if t == nil {
		return ErrInvalidTemplate
	}

	if err := ValidateName(t.Name); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	if t.OrganizationID == "" {
		return fmt.Errorf("%w: organization_id is required", ErrInvalidTemplate)
	}

	if len(t.Defaults) > maxDefaultsKeys {
		return fmt.Errorf("%w: defaults exceeds %d keys", ErrInvalidTemplate, maxDefaultsKeys)
	}

	return nil
}

// ValidateConfiguration performs validation on a device configuration.
func ValidateConfiguration(c *Configuration) error {
	if c == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidDevice)
	}

	if c.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidDevice)
	}

	if c.EventBufferSize < 0 || c.HeartbeatInterval < 0 || c.DoorOpenTimeout < 0 {
		return fmt.Errorf("%w: negative configuration value", ErrInvalidDevice)
	}

	if len(c.Extra) > maxExtraKeys {
		return fmt.Errorf("%w: extra exceeds %d keys", ErrInvalidDevice, maxExtraKeys)
	}

	return nil
}
