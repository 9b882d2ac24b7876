package webhook

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/accessgrid/fleet-core/internal/device"
)

// fakeLookup resolves devices by ID and host.
type fakeLookup struct {
	byID   map[string]*device.Device
	byHost map[string]*device.Device
}

func (f *fakeLookup) GetDevice(_ context.Context, id string) (*device.Device, error) {
	if d, ok := f.byID[id]; ok {
		return d, nil
	}
	return nil, device.ErrDeviceNotFound
}

func (f *fakeLookup) FindDeviceByHost(_ context.Context, host string) (*device.Device, error) {
	if d, ok := f.byHost[host]; ok {
		return d, nil
	}
	return nil, device.ErrDeviceNotFound
}

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

type delivery struct {
	deviceID  string
	eventType string
	matched   bool
}

type fakeDeliveryMetrics struct {
	deliveries []delivery
}

func (f *fakeDeliveryMetrics) WriteWebhookDelivery(deviceID, eventType string, matched bool) {
	f.deliveries = append(f.deliveries, delivery{deviceID, eventType, matched})
}

func setupProcessor(t *testing.T) (*Processor, *fakeLookup, *SQLiteEventRepository, *SQLiteRepository, *fakePublisher, *fakeDeliveryMetrics) {
	t.Helper()

	db := setupTestDB(t)
	dev := &device.Device{ID: "dev-1", Host: "192.168.1.50", IsActive: true}
	lookup := &fakeLookup{
		byID:   map[string]*device.Device{"dev-1": dev},
		byHost: map[string]*device.Device{"192.168.1.50": dev},
	}
	hooks := NewSQLiteRepository(db)
	events := NewSQLiteEventRepository(db)
	pub := &fakePublisher{}
	metrics := &fakeDeliveryMetrics{}

	p := NewProcessor(lookup, hooks, events)
	p.SetPublisher(pub)
	p.SetMetrics(metrics)
	return p, lookup, events, hooks, pub, metrics
}

func accessEvent(extra map[string]any) map[string]any {
	payload := map[string]any{
		"eventType": "AccessControllerEvent",
		"AccessControllerEvent": map[string]any{
			"deviceName":       "Front Door",
			"employeeNoString": "1001",
			"cardNo":           "CARD001",
		},
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

func TestIngest_PathHintIdentity(t *testing.T) {
	p, _, events, _, pub, _ := setupProcessor(t)

	ack := p.Ingest(context.Background(), IncomingEvent{
		DeviceIDHint: "dev-1",
		Payload:      accessEvent(nil),
		SourceIP:     "10.9.9.9", // wrong on purpose; hint must win
	})

	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, want ok", ack)
	}

	stored, err := events.ListByDevice(context.Background(), "dev-1", 10)
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("got %d events, want 1", len(stored))
	}
	event := stored[0]
	if event.EventType != EventAccessControl {
		t.Errorf("EventType = %q, want normalized", event.EventType)
	}
	if event.EmployeeRef == nil || *event.EmployeeRef != "1001" {
		t.Errorf("EmployeeRef = %v, want 1001", event.EmployeeRef)
	}
	if event.CredentialRef == nil || *event.CredentialRef != "CARD001" {
		t.Errorf("CredentialRef = %v, want CARD001", event.CredentialRef)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	if want := "accesscore/event/access_control/dev-1"; pub.messages[0].topic != want {
		t.Errorf("topic = %q, want %q", pub.messages[0].topic, want)
	}
}

func TestIngest_PayloadFieldIdentity(t *testing.T) {
	p, _, events, _, _, metrics := setupProcessor(t)

	ack := p.Ingest(context.Background(), IncomingEvent{
		Payload:  accessEvent(map[string]any{"deviceId": "dev-1"}),
		SourceIP: "10.9.9.9",
	})
	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, want ok", ack)
	}

	stored, _ := events.ListByDevice(context.Background(), "dev-1", 10)
	if len(stored) != 1 {
		t.Fatalf("event not attributed via payload field")
	}
	if len(metrics.deliveries) != 1 || !metrics.deliveries[0].matched {
		t.Errorf("deliveries = %+v, want one matched", metrics.deliveries)
	}
}

func TestIngest_NestedPayloadFieldIdentity(t *testing.T) {
	p, lookup, events, _, _, _ := setupProcessor(t)

	// Device registered under its reported name
	lookup.byID["Front Door"] = lookup.byID["dev-1"]

	ack := p.Ingest(context.Background(), IncomingEvent{Payload: accessEvent(nil)})
	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, want ok", ack)
	}

	stored, _ := events.ListByDevice(context.Background(), "dev-1", 10)
	if len(stored) != 1 {
		t.Error("nested AccessControllerEvent.deviceName not used for identity")
	}
}

func TestIngest_SourceIPFallback(t *testing.T) {
	p, _, events, _, _, _ := setupProcessor(t)

	ack := p.Ingest(context.Background(), IncomingEvent{
		Payload:  map[string]any{"eventType": "heartbeat"},
		SourceIP: "192.168.1.50",
	})
	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, want ok", ack)
	}

	stored, _ := events.ListByDevice(context.Background(), "dev-1", 10)
	if len(stored) != 1 {
		t.Error("source IP fallback did not attribute the event")
	}
}

func TestIngest_UnidentifiedStillProcessed(t *testing.T) {
	p, _, _, _, pub, metrics := setupProcessor(t)

	ack := p.Ingest(context.Background(), IncomingEvent{
		Payload:  map[string]any{"eventType": "alarm"},
		SourceIP: "172.16.0.200",
	})
	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, want ok for unmatched delivery", ack)
	}

	// Event published under the unknown device marker
	if len(pub.messages) != 1 || !strings.HasSuffix(pub.messages[0].topic, "/unknown") {
		t.Errorf("messages = %+v, want alarm published for unknown device", pub.messages)
	}
	if len(metrics.deliveries) != 1 || metrics.deliveries[0].matched {
		t.Errorf("deliveries = %+v, want one unmatched", metrics.deliveries)
	}
}

func TestIngest_UnknownEventTypeDropped(t *testing.T) {
	p, _, events, _, pub, _ := setupProcessor(t)

	ack := p.Ingest(context.Background(), IncomingEvent{
		DeviceIDHint: "dev-1",
		Payload:      map[string]any{"eventType": "videoLoss"},
	})
	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, unknown types must not error", ack)
	}

	stored, _ := events.ListByDevice(context.Background(), "dev-1", 10)
	if len(stored) != 0 {
		t.Error("unknown event type persisted")
	}
	if len(pub.messages) != 0 {
		t.Error("unknown event type published")
	}
}

func TestIngest_TriggerStats(t *testing.T) {
	p, _, _, hooks, _, _ := setupProcessor(t)
	ctx := context.Background()

	if err := hooks.Upsert(ctx, testWebhook("dev-1", "1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	ack := p.Ingest(ctx, IncomingEvent{
		DeviceIDHint: "dev-1",
		Payload:      accessEvent(map[string]any{"hostId": "1"}),
	})
	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, want ok", ack)
	}

	hook, err := hooks.GetByHostID(ctx, "dev-1", "1")
	if err != nil {
		t.Fatalf("GetByHostID() error = %v", err)
	}
	if hook.TriggerCount != 1 {
		t.Errorf("TriggerCount = %d, want 1", hook.TriggerCount)
	}
	if hook.LastTriggered == nil {
		t.Error("LastTriggered not set")
	}
}

func TestIngest_MissingHostIDSkipsStats(t *testing.T) {
	p, _, events, hooks, _, _ := setupProcessor(t)
	ctx := context.Background()

	if err := hooks.Upsert(ctx, testWebhook("dev-1", "1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	ack := p.Ingest(ctx, IncomingEvent{DeviceIDHint: "dev-1", Payload: accessEvent(nil)})
	if ack.Status != "ok" {
		t.Fatalf("ack = %+v, want ok", ack)
	}

	hook, _ := hooks.GetByHostID(ctx, "dev-1", "1")
	if hook.TriggerCount != 0 {
		t.Errorf("TriggerCount = %d, want stats skipped without a host ID", hook.TriggerCount)
	}
	stored, _ := events.ListByDevice(ctx, "dev-1", 10)
	if len(stored) != 1 {
		t.Error("event processing skipped along with the stats")
	}
}

func TestIngest_NestedHostID(t *testing.T) {
	p, _, _, hooks, _, _ := setupProcessor(t)
	ctx := context.Background()

	if err := hooks.Upsert(ctx, testWebhook("dev-1", "2")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	p.Ingest(ctx, IncomingEvent{
		DeviceIDHint: "dev-1",
		Payload: map[string]any{
			"eventType":              "doorStatus",
			"EventNotificationAlert": map[string]any{"hostID": "2"},
		},
	})

	hook, _ := hooks.GetByHostID(ctx, "dev-1", "2")
	if hook.TriggerCount != 1 {
		t.Errorf("TriggerCount = %d, want nested hostID extracted", hook.TriggerCount)
	}
}

func TestIngest_GrantedFlag(t *testing.T) {
	p, _, events, _, _, _ := setupProcessor(t)

	p.Ingest(context.Background(), IncomingEvent{
		DeviceIDHint: "dev-1",
		Payload:      accessEvent(map[string]any{"granted": false}),
	})

	stored, _ := events.ListByDevice(context.Background(), "dev-1", 10)
	if len(stored) != 1 {
		t.Fatal("event not stored")
	}
	if stored[0].Granted == nil || *stored[0].Granted {
		t.Errorf("Granted = %v, want false", stored[0].Granted)
	}
}

func TestExtractEventType_HikvisionTopLevelKey(t *testing.T) {
	payload := map[string]any{
		"AccessControllerEvent": map[string]any{"employeeNoString": "1001"},
	}
	if got := extractEventType(payload); got != "AccessControllerEvent" {
		t.Errorf("extractEventType() = %q, want top-level key recognised", got)
	}
}

func TestStringAt_NumericIdentifier(t *testing.T) {
	payload := map[string]any{"params": map[string]any{"deviceID": float64(42)}}
	if got := stringAt(payload, "params", "deviceID"); got != "42" {
		t.Errorf("stringAt() = %q, want numeric id rendered", got)
	}
}
