package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCommandLatency records the round-trip time of a device command.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Device identifier the command was sent to
//   - adapterKind: Adapter that executed the command (e.g., "hikvision")
//   - command: Command name (e.g., "addUser", "unlock")
//   - durationMs: Round-trip time in milliseconds
//   - success: Whether the command completed without error
func (c *Client) WriteCommandLatency(deviceID, adapterKind, command string, durationMs float64, success bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_latency",
		map[string]string{
			"device_id": deviceID,
			"adapter":   adapterKind,
			"command":   command,
		},
		map[string]interface{}{
			"duration_ms": durationMs,
			"success":     success,
		},
		time.Now(),
	)

	c.writes.WritePoint(point)
}

// WriteWebhookDelivery records an inbound webhook event delivery.
//
// Used for tracking ingestion volume and correlation quality per device.
//
// Parameters:
//   - deviceID: Correlated device identifier ("" if the event was unmatched)
//   - eventType: Normalized event type (e.g., "access_granted", "heartbeat")
//   - matched: Whether the event was correlated to a registered device
func (c *Client) WriteWebhookDelivery(deviceID, eventType string, matched bool) {
	if !c.IsConnected() {
		return
	}

	tags := map[string]string{
		"event_type": eventType,
	}
	if deviceID != "" {
		tags["device_id"] = deviceID
	}

	point := write.NewPoint(
		"webhook_delivery",
		tags,
		map[string]interface{}{
			"count":   1,
			"matched": matched,
		},
		time.Now(),
	)

	c.writes.WritePoint(point)
}

// WriteDeviceHealth records a device health probe result.
//
// Parameters:
//   - deviceID: Device identifier
//   - online: Whether the device responded to the probe
//   - responseMs: Probe response time in milliseconds (0 if offline)
func (c *Client) WriteDeviceHealth(deviceID string, online bool, responseMs float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_health",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online":      online,
			"response_ms": responseMs,
		},
		time.Now(),
	)

	c.writes.WritePoint(point)
}

// WriteSyncSummary records the outcome of a reconciliation run against a device.
//
// Parameters:
//   - deviceID: Device that was reconciled
//   - added, updated, removed, failed: Per-operation counts from the run
func (c *Client) WriteSyncSummary(deviceID string, added, updated, removed, failed int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sync_summary",
		map[string]string{
			"device_id": deviceID,
		},
		map[string]interface{}{
			"added":   added,
			"updated": updated,
			"removed": removed,
			"failed":  failed,
		},
		time.Now(),
	)

	c.writes.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "fleet-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writes.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writes.WritePoint(point)
}
