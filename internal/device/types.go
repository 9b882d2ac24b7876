package device

import "time"

// Device represents a physical access-control endpoint managed by the engine.
// This matches the database schema in migrations/20260815_100000_initial_schema.up.sql.
type Device struct {
	// Identity
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`

	// Connection
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`

	// CredentialsSealed is the AEAD-sealed credential blob (username/password
	// JSON). Never serialized in API responses; plaintext never touches disk.
	CredentialsSealed []byte `json:"-"`

	// Classification
	Manufacturer *string    `json:"manufacturer,omitempty"`
	Model        *string    `json:"model,omitempty"`
	Type         DeviceType `json:"type"`

	// Liveness
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`

	// IsActive gates all command execution. Inactive devices stay registered
	// but reject commands, syncs and template application.
	IsActive bool `json:"is_active"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the Device.
// All reference fields are cloned so modifications to the copy
// do not affect the original. This is essential for cache isolation.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d // Shallow copy of value fields

	if d.CredentialsSealed != nil {
		cpy.CredentialsSealed = make([]byte, len(d.CredentialsSealed))
		copy(cpy.CredentialsSealed, d.CredentialsSealed)
	}

	// Pointer fields (*string, *time.Time) don't need deep copy
	// because strings and time.Time are immutable in Go

	return &cpy
}

// Credentials is the plaintext shape sealed into CredentialsSealed.
// Instances should be short-lived; unseal, use, discard.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Configuration holds the tunable parameters pushed to a device.
// One-to-one with a device; absent until first applied.
type Configuration struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`

	NTPServer         *string `json:"ntp_server,omitempty"`
	Timezone          *string `json:"timezone,omitempty"`
	OfflineMode       bool    `json:"offline_mode"`
	EventBufferSize   int     `json:"event_buffer_size"`
	HeartbeatInterval int     `json:"heartbeat_interval"`
	DoorOpenTimeout   int     `json:"door_open_timeout"`
	AntiPassback      bool    `json:"anti_passback"`

	// Extra carries vendor-specific parameters that have no dedicated column.
	Extra map[string]any `json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Template is a reusable set of configuration defaults scoped to an
// organization and optionally to a manufacturer/model pair.
// Name is unique per organization.
type Template struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`

	// Scope. Empty manufacturer/model matches any device.
	Manufacturer *string `json:"manufacturer,omitempty"`
	Model        *string `json:"model,omitempty"`

	// Priority orders templates when several match; higher wins.
	Priority int `json:"priority"`

	// Defaults uses the same keys as Configuration JSON fields.
	Defaults map[string]any `json:"defaults"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Protocol represents the transport used to reach a device.
type Protocol string

// Protocol constants.
const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolTCP   Protocol = "tcp"
	ProtocolRTSP  Protocol = "rtsp"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolHTTP, ProtocolHTTPS, ProtocolTCP, ProtocolRTSP}
}

// DeviceType represents the physical kind of access device.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// DeviceType constants.
const (
	DeviceTypeCardReader     DeviceType = "card_reader"
	DeviceTypeFaceTerminal   DeviceType = "face_terminal"
	DeviceTypeDoorController DeviceType = "door_controller"
	DeviceTypeTurnstile      DeviceType = "turnstile"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeCardReader, DeviceTypeFaceTerminal,
		DeviceTypeDoorController, DeviceTypeTurnstile,
	}
}

// Status represents the last known liveness of a device.
type Status string

// Status constants.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
	StatusFault   Status = "fault"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusUnknown, StatusFault}
}
