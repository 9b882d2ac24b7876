package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/infrastructure/mqtt"
	"github.com/google/uuid"
)

// DeviceLookup resolves incoming deliveries to registered devices.
// Satisfied by device.Registry.
type DeviceLookup interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	FindDeviceByHost(ctx context.Context, host string) (*device.Device, error)
}

// Publisher publishes normalized events. Satisfied by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Metrics receives delivery outcome points. Satisfied by influxdb.Client.
type Metrics interface {
	WriteWebhookDelivery(deviceID, eventType string, matched bool)
}

// Processor correlates raw device deliveries to registered devices and
// routes them into the event log, MQTT and metrics.
//
// Processing is stateless per request; concurrent ingestion needs no
// coordination beyond the database's own.
type Processor struct {
	devices  DeviceLookup
	webhooks Repository
	events   EventRepository

	publisher Publisher
	metrics   Metrics
	logger    device.Logger
	topics    mqtt.Topics

	matchers []deviceMatcher
}

// deviceMatcher is one strategy for resolving a delivery to a device.
// Matchers run in order; the first hit wins.
type deviceMatcher struct {
	name    string
	resolve func(ctx context.Context, in IncomingEvent) (*device.Device, error)
}

// NewProcessor creates an ingestion processor.
func NewProcessor(devices DeviceLookup, webhooks Repository, events EventRepository) *Processor {
	p := &Processor{
		devices:  devices,
		webhooks: webhooks,
		events:   events,
		logger:   noopLogger{},
	}
	p.matchers = []deviceMatcher{
		{name: "path_hint", resolve: p.matchPathHint},
		{name: "payload_field", resolve: p.matchPayloadField},
		{name: "source_ip", resolve: p.matchSourceIP},
	}
	return p
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(logger device.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// SetPublisher attaches an MQTT publisher for normalized events.
func (p *Processor) SetPublisher(pub Publisher) {
	p.publisher = pub
}

// SetMetrics attaches a metrics sink for delivery outcomes.
func (p *Processor) SetMetrics(m Metrics) {
	p.metrics = m
}

// Ingest processes one raw delivery. It never fails: whatever happens, the
// caller gets an Ack to answer 200 with, because access terminals treat any
// other status as a transport error and retry forever.
func (p *Processor) Ingest(ctx context.Context, in IncomingEvent) *Ack {
	now := time.Now().UTC()

	dev := p.identifyDevice(ctx, in)

	// Trigger stats are independent of event processing: a delivery that
	// names a host we know gets counted even if the payload is garbage.
	hostID := extractHostID(in.Payload)

	rawType := extractEventType(in.Payload)
	eventType, known := normalizeEventType(rawType)

	if !known {
		p.logger.Info("dropping unknown event type",
			"event_type", rawType, "device_id", deviceIDOf(dev), "source_ip", in.SourceIP)
		p.recordTrigger(ctx, dev, hostID, nil)
		p.recordDelivery(dev, rawType)
		return &Ack{Status: "ok", Timestamp: now}
	}

	event := p.normalize(in, dev, eventType)

	if err := p.events.Insert(ctx, event); err != nil {
		p.logger.Error("persisting event", "event_type", eventType, "error", err)
		msg := err.Error()
		p.recordTrigger(ctx, dev, hostID, &msg)
		return &Ack{Status: "error", Message: "event not recorded", Timestamp: now}
	}

	p.publish(event)
	p.recordTrigger(ctx, dev, hostID, nil)
	p.recordDelivery(dev, eventType)

	return &Ack{Status: "ok", Timestamp: now}
}

// identifyDevice runs the matcher chain. A delivery no matcher resolves is
// still processed; its event rows just carry no device.
func (p *Processor) identifyDevice(ctx context.Context, in IncomingEvent) *device.Device {
	for _, m := range p.matchers {
		dev, err := m.resolve(ctx, in)
		if err != nil {
			p.logger.Debug("device matcher errored", "matcher", m.name, "error", err)
			continue
		}
		if dev != nil {
			return dev
		}
	}
	p.logger.Warn("unmatched delivery", "hint", in.DeviceIDHint, "source_ip", in.SourceIP)
	return nil
}

func (p *Processor) matchPathHint(ctx context.Context, in IncomingEvent) (*device.Device, error) {
	if in.DeviceIDHint == "" {
		return nil, nil
	}
	dev, err := p.devices.GetDevice(ctx, in.DeviceIDHint)
	if err != nil {
		return nil, nil // unknown hint, fall through
	}
	return dev, nil
}

// devicePayloadFields are checked in order against the delivery body.
// The mix covers Hikvision, ZKTeco and Dahua payload shapes.
var devicePayloadFields = [][]string{
	{"deviceId"},
	{"deviceID"},
	{"serialNo"},
	{"serial"},
	{"sn"},
	{"AccessControllerEvent", "deviceName"},
	{"device", "id"},
	{"params", "deviceID"},
}

func (p *Processor) matchPayloadField(ctx context.Context, in IncomingEvent) (*device.Device, error) {
	for _, path := range devicePayloadFields {
		id := stringAt(in.Payload, path...)
		if id == "" {
			continue
		}
		if dev, err := p.devices.GetDevice(ctx, id); err == nil {
			return dev, nil
		}
	}
	return nil, nil
}

func (p *Processor) matchSourceIP(ctx context.Context, in IncomingEvent) (*device.Device, error) {
	if in.SourceIP == "" {
		return nil, nil
	}
	dev, err := p.devices.FindDeviceByHost(ctx, in.SourceIP)
	if err != nil {
		return nil, nil
	}
	return dev, nil
}

// normalize maps the raw payload into an event log row.
func (p *Processor) normalize(in IncomingEvent, dev *device.Device, eventType string) *Event {
	event := &Event{
		ID:         uuid.NewString(),
		EventType:  eventType,
		Payload:    in.Payload,
		OccurredAt: extractOccurredAt(in.Payload),
	}
	if dev != nil {
		id := dev.ID
		event.DeviceID = &id
	}
	if in.SourceIP != "" {
		ip := in.SourceIP
		event.SourceIP = &ip
	}

	if ref := firstString(in.Payload,
		[]string{"employeeNoString"},
		[]string{"employeeNo"},
		[]string{"employeeId"},
		[]string{"userId"},
		[]string{"AccessControllerEvent", "employeeNoString"},
	); ref != "" {
		event.EmployeeRef = &ref
	}
	if ref := firstString(in.Payload,
		[]string{"cardNo"},
		[]string{"AccessControllerEvent", "cardNo"},
	); ref != "" {
		event.CredentialRef = &ref
	}
	if granted, ok := boolAt(in.Payload, "granted"); ok {
		event.Granted = &granted
	} else if granted, ok := boolAt(in.Payload, "accessGranted"); ok {
		event.Granted = &granted
	}

	return event
}

// publish sends the normalized event to its MQTT topic, best effort.
func (p *Processor) publish(event *Event) {
	if p.publisher == nil {
		return
	}
	deviceID := "unknown"
	if event.DeviceID != nil {
		deviceID = *event.DeviceID
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	topic := p.topics.DeviceEvent(event.EventType, deviceID)
	if err := p.publisher.Publish(topic, payload, 0, false); err != nil {
		p.logger.Warn("publishing event", "topic", topic, "error", err)
	}
}

// recordTrigger bumps webhook stats when the delivery named a host we can
// attribute. Deliveries without a host ID skip stats but are processed.
func (p *Processor) recordTrigger(ctx context.Context, dev *device.Device, hostID string, errMsg *string) {
	if hostID == "" || dev == nil {
		return
	}
	if err := p.webhooks.RecordTrigger(ctx, dev.ID, hostID, errMsg); err != nil {
		p.logger.Debug("recording trigger stats",
			"device_id", dev.ID, "host_id", hostID, "error", err)
	}
}

func (p *Processor) recordDelivery(dev *device.Device, eventType string) {
	if p.metrics == nil {
		return
	}
	p.metrics.WriteWebhookDelivery(deviceIDOf(dev), eventType, dev != nil)
}

func deviceIDOf(dev *device.Device) string {
	if dev == nil {
		return ""
	}
	return dev.ID
}

// rawEventTypes maps vendor event type markers to normalized types.
var rawEventTypes = map[string]string{
	"AccessControllerEvent": EventAccessControl,
	"faceMatch":             EventFaceMatch,
	"cardReader":            EventCardReader,
	"doorStatus":            EventDoorStatus,
	"alarm":                 EventAlarm,
	"heartbeat":             EventHeartbeat,
}

// extractEventType finds the vendor's event type marker in the payload.
func extractEventType(payload map[string]any) string {
	if t := firstString(payload,
		[]string{"eventType"},
		[]string{"EventNotificationAlert", "eventType"},
	); t != "" {
		return t
	}
	// Hikvision puts the type as a top-level object key
	if _, ok := payload["AccessControllerEvent"].(map[string]any); ok {
		return "AccessControllerEvent"
	}
	return ""
}

func normalizeEventType(raw string) (string, bool) {
	normalized, ok := rawEventTypes[raw]
	return normalized, ok
}

// hostIDFields are checked in order for the event host slot the delivery
// belongs to.
var hostIDFields = [][]string{
	{"hostId"},
	{"hostID"},
	{"eventHostId"},
	{"EventNotificationAlert", "hostID"},
}

func extractHostID(payload map[string]any) string {
	return firstString(payload, hostIDFields...)
}

func extractOccurredAt(payload map[string]any) time.Time {
	raw := firstString(payload,
		[]string{"dateTime"},
		[]string{"time"},
		[]string{"EventNotificationAlert", "dateTime"},
	)
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

// stringAt walks a dotted path through nested payload maps.
func stringAt(payload map[string]any, path ...string) string {
	current := any(payload)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[key]
	}
	switch v := current.(type) {
	case string:
		return v
	case float64:
		// JSON numbers used as identifiers
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func firstString(payload map[string]any, paths ...[]string) string {
	for _, path := range paths {
		if v := stringAt(payload, path...); v != "" {
			return v
		}
	}
	return ""
}

func boolAt(payload map[string]any, key string) (bool, bool) {
	v, ok := payload[key].(bool)
	return v, ok
}
