// Package mqtt is Fleet Core's outbound event bus.
//
// Correlated webhook events, reconciliation summaries and device status
// transitions are published here for the surrounding business product.
// Topic construction is centralised in Topics so producers and consumers
// agree on the scheme:
//
//	accesscore/event/{type}/{device_id}   normalized device events
//	accesscore/device/{device_id}/status  health transitions (retained)
//	accesscore/sync/{device_id}/summary   reconciliation run results
//	accesscore/system/status              service presence (retained, with LWT)
//
// The client wraps eclipse/paho.mqtt.golang with automatic reconnection,
// subscription restoration and panic containment around handlers. MQTT is
// optional: when disabled in config the rest of the system runs with a nil
// publisher and skips fan-out.
package mqtt
