package mqtt

import "fmt"

// Topic prefixes for the Fleet Core MQTT scheme.
//
// All topics follow: accesscore/{category}/...
// Event topics carry normalized device events from the webhook ingestion
// path; consumers (the surrounding business product, dashboards) subscribe
// with wildcards.
const (
	// TopicPrefix is the base for all Fleet Core topics.
	TopicPrefix = "accesscore"

	// TopicPrefixEvent is the base for normalized device event topics.
	TopicPrefixEvent = "accesscore/event"

	// TopicPrefixDevice is the base for per-device status topics.
	TopicPrefixDevice = "accesscore/device"

	// TopicPrefixSync is the base for reconciliation result topics.
	TopicPrefixSync = "accesscore/sync"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "accesscore/system"
)

// Topics provides builders for Fleet Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.DeviceEvent("access_granted", "dev-0f3a")
//	// Returns: "accesscore/event/access_granted/dev-0f3a"
type Topics struct{}

// DeviceEvent returns the topic for a normalized device event.
//
// Example: accesscore/event/access_granted/dev-0f3a
func (Topics) DeviceEvent(eventType, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixEvent, eventType, deviceID)
}

// DeviceStatus returns the topic for device health status transitions.
//
// Example: accesscore/device/dev-0f3a/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevice, deviceID)
}

// SyncSummary returns the topic for reconciliation run summaries.
//
// Example: accesscore/sync/dev-0f3a/summary
func (Topics) SyncSummary(deviceID string) string {
	return fmt.Sprintf("%s/%s/summary", TopicPrefixSync, deviceID)
}

// SystemStatus returns the system status topic.
// Liveness is published retained here, and the LWT points at it too.
//
// Example: accesscore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceEvents returns a pattern matching every normalized device event.
//
// Pattern: accesscore/event/+/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/+/+", TopicPrefixEvent)
}

// EventsOfType returns a pattern matching one event type across all devices.
//
// Pattern: accesscore/event/door_status/+
func (Topics) EventsOfType(eventType string) string {
	return fmt.Sprintf("%s/%s/+", TopicPrefixEvent, eventType)
}
