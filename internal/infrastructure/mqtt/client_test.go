package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func disconnectedClient() *Client {
	return &Client{subs: make(map[string]subscription)}
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	cases := []struct {
		got, want string
	}{
		{topics.DeviceEvent("access_granted", "dev-0f3a"), "accesscore/event/access_granted/dev-0f3a"},
		{topics.DeviceStatus("dev-0f3a"), "accesscore/device/dev-0f3a/status"},
		{topics.SyncSummary("dev-0f3a"), "accesscore/sync/dev-0f3a/summary"},
		{topics.SystemStatus(), "accesscore/system/status"},
		{topics.AllDeviceEvents(), "accesscore/event/+/+"},
		{topics.EventsOfType("door_status"), "accesscore/event/door_status/+"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("topic = %q, want %q", c.got, c.want)
		}
	}
}

func TestPresencePayloads(t *testing.T) {
	for name, payload := range map[string][]byte{
		"online":  presenceOnline("fleet-core"),
		"offline": presenceOffline("fleet-core"),
		"crashed": presenceCrashed("fleet-core"),
	} {
		var p presence
		if err := json.Unmarshal(payload, &p); err != nil {
			t.Fatalf("%s presence is not valid JSON: %v", name, err)
		}
		if p.ClientID != "fleet-core" {
			t.Errorf("%s presence client_id = %q", name, p.ClientID)
		}
		if p.Timestamp == "" {
			t.Errorf("%s presence has no timestamp", name)
		}
	}

	var off presence
	_ = json.Unmarshal(presenceOffline("x"), &off)
	if off.Status != "offline" || off.Reason != "graceful_shutdown" {
		t.Errorf("graceful offline presence = %+v", off)
	}
	var crash presence
	_ = json.Unmarshal(presenceCrashed("x"), &crash)
	if crash.Reason != "unexpected_disconnect" {
		t.Errorf("crash presence reason = %q", crash.Reason)
	}
}

func TestPublishValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Publish("a/b", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3: got %v, want ErrInvalidQoS", err)
	}

	huge := []byte(strings.Repeat("x", maxPayloadSize+1))
	if err := c.Publish("a/b", huge, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversize payload: got %v, want ErrPublishFailed", err)
	}

	if err := c.Publish("a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish: got %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("a/b", 9, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 9: got %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: got %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("a/b", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected subscribe: got %v, want ErrNotConnected", err)
	}

	// A failed subscribe must not leave a tracked subscription behind.
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount = %d after failed subscribes", c.SubscriptionCount())
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := disconnectedClient()

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: got %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("a/b"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected unsubscribe: got %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := disconnectedClient()

	c.subMu.Lock()
	c.subs["accesscore/event/+/+"] = subscription{qos: 1}
	c.subMu.Unlock()

	if !c.HasSubscription("accesscore/event/+/+") {
		t.Error("HasSubscription = false for tracked topic")
	}
	if c.HasSubscription("accesscore/event/door_status/dev-1") {
		t.Error("HasSubscription matched a non-tracked topic; tracking must be exact-string")
	}

	c.dropSubscription("accesscore/event/+/+")
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount = %d after drop, want 0", c.SubscriptionCount())
	}
}

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.warns = append(l.warns, msg) }

func TestDispatchContainsPanics(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	h := c.dispatch(func(string, []byte) error {
		panic("boom")
	})

	// Must not propagate the panic.
	h(nil, fakeMessage{topic: "a/b", payload: []byte("x")})

	if len(logger.errors) != 1 {
		t.Fatalf("logged %d errors, want 1", len(logger.errors))
	}
}

func TestDispatchLogsHandlerErrors(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	h := c.dispatch(func(string, []byte) error {
		return errors.New("bad payload")
	})
	h(nil, fakeMessage{topic: "a/b", payload: []byte("x")})

	if len(logger.warns) != 1 {
		t.Fatalf("logged %d warnings, want 1", len(logger.warns))
	}
}

// fakeMessage implements paho.Message for dispatch tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}
