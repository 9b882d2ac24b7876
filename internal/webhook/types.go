package webhook

import "time"

// Webhook is one event-host registration pushed to a device. Removal
// deactivates the row rather than deleting it so trigger history survives.
type Webhook struct {
	ID            string     `json:"id"`
	DeviceID      string     `json:"deviceId"`
	HostID        string     `json:"hostId"`
	URL           string     `json:"url"`
	EventTypes    []string   `json:"eventTypes"`
	Protocol      string     `json:"protocol"`
	Format        string     `json:"format"`
	Active        bool       `json:"active"`
	TriggerCount  int64      `json:"triggerCount"`
	LastTriggered *time.Time `json:"lastTriggered,omitempty"`
	LastError     *string    `json:"lastError,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ConfigureRequest describes the event host to push to a device.
type ConfigureRequest struct {
	HostID     string   `json:"hostId,omitempty"`
	URL        string   `json:"url"`
	EventTypes []string `json:"eventTypes,omitempty"`
	Protocol   string   `json:"protocol,omitempty"`
	Format     string   `json:"format,omitempty"`
}

// IncomingEvent is one raw delivery from a device, before correlation.
type IncomingEvent struct {
	// DeviceIDHint is the path segment of the ingestion URL, when present.
	DeviceIDHint string

	// Payload is the decoded JSON body.
	Payload map[string]any

	// SourceIP is the remote address the delivery came from, used as the
	// last resort for device identity.
	SourceIP string

	// Headers carries the delivery's HTTP headers.
	Headers map[string][]string
}

// Ack is the response body for an ingestion request. The endpoint always
// answers 200; devices retry forever on anything else and some lock up.
type Ack struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is a normalized device event persisted to the event log.
type Event struct {
	ID            string         `json:"id"`
	DeviceID      *string        `json:"deviceId,omitempty"`
	EventType     string         `json:"eventType"`
	EmployeeRef   *string        `json:"employeeRef,omitempty"`
	CredentialRef *string        `json:"credentialRef,omitempty"`
	Granted       *bool          `json:"granted,omitempty"`
	Payload       map[string]any `json:"payload"`
	SourceIP      *string        `json:"sourceIp,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
	ReceivedAt    time.Time      `json:"receivedAt"`
}

// Normalized event types written to the event log and MQTT topics.
const (
	EventAccessControl = "access_control"
	EventFaceMatch     = "face_match"
	EventCardReader    = "card_reader"
	EventDoorStatus    = "door_status"
	EventAlarm         = "alarm"
	EventHeartbeat     = "heartbeat"
)
