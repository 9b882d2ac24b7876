package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/secrets"
)

// fakeStore is an in-memory DeviceStore.
type fakeStore struct {
	devices  map[string]*device.Device
	statuses map[string]device.Status
}

func newFakeStore(devices ...*device.Device) *fakeStore {
	s := &fakeStore{
		devices:  make(map[string]*device.Device),
		statuses: make(map[string]device.Status),
	}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	return s
}

func (s *fakeStore) GetDevice(_ context.Context, id string) (*device.Device, error) {
	d, ok := s.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (s *fakeStore) SetStatus(_ context.Context, id string, status device.Status) error {
	s.statuses[id] = status
	return nil
}

// recordingAdapter is a fake adapter that records calls and returns canned
// responses. Embeds Stub to satisfy the full interface.
type recordingAdapter struct {
	Stub
	kind      Kind
	lastCreds device.Credentials
	lastCmd   Command
	result    *Result
	err       error
	connected bool
}

func (a *recordingAdapter) Kind() Kind { return a.kind }

func (a *recordingAdapter) SendCommand(_ context.Context, _ *device.Device, creds device.Credentials, cmd Command) (*Result, error) {
	a.lastCreds = creds
	a.lastCmd = cmd
	if a.err != nil {
		return nil, a.err
	}
	if a.result != nil {
		return a.result, nil
	}
	return &Result{Success: true}, nil
}

func (a *recordingAdapter) TestConnection(context.Context, *device.Device, device.Credentials) bool {
	return a.connected
}

func testBox(t *testing.T) *secrets.Box {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i * 3)
	}
	box, err := secrets.NewBox(key)
	if err != nil {
		t.Fatalf("NewBox() error = %v", err)
	}
	return box
}

func sealedCreds(t *testing.T, box *secrets.Box, username, password string) []byte {
	t.Helper()
	plain, err := json.Marshal(device.Credentials{Username: username, Password: password})
	if err != nil {
		t.Fatalf("marshalling credentials: %v", err)
	}
	blob, err := box.Seal(plain)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	return blob
}

func hikvisionDevice(id string, sealed []byte) *device.Device {
	manufacturer := "Hikvision"
	return &device.Device{
		ID:                id,
		OrganizationID:    "org-1",
		Name:              "Terminal",
		Host:              "192.168.1.50",
		Port:              80,
		Protocol:          device.ProtocolHTTP,
		Manufacturer:      &manufacturer,
		Type:              device.DeviceTypeFaceTerminal,
		IsActive:          true,
		CredentialsSealed: sealed,
	}
}

func setupExecutor(t *testing.T, fake *recordingAdapter, devices ...*device.Device) (*Executor, *fakeStore) {
	t.Helper()
	box := testBox(t)
	store := newFakeStore(devices...)
	reg := NewRegistry()
	reg.Register(fake)
	exec := NewExecutor(store, reg, box, 5*time.Second)
	return exec, store
}

func TestExecutor_ExecuteCommand_UnsealsCredentials(t *testing.T) {
	box := testBox(t)
	sealed := sealedCreds(t, box, "admin", "s3cret")
	dev := hikvisionDevice("dev-1", sealed)

	fake := &recordingAdapter{kind: KindHikvision}
	store := newFakeStore(dev)
	reg := NewRegistry()
	reg.Register(fake)
	exec := NewExecutor(store, reg, box, 5*time.Second)

	result, err := exec.ExecuteCommand(context.Background(), "dev-1", Command{Name: "addUser"})
	if err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if fake.lastCreds.Username != "admin" || fake.lastCreds.Password != "s3cret" {
		t.Errorf("adapter received creds %+v, want admin/s3cret", fake.lastCreds)
	}
}

func TestExecutor_ExecuteCommand_DefaultTimeout(t *testing.T) {
	fake := &recordingAdapter{kind: KindHikvision}
	exec, _ := setupExecutor(t, fake, hikvisionDevice("dev-1", nil))

	if _, err := exec.ExecuteCommand(context.Background(), "dev-1", Command{Name: "unlock"}); err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if fake.lastCmd.Timeout != 5*time.Second {
		t.Errorf("command timeout = %v, want executor default 5s", fake.lastCmd.Timeout)
	}

	// Explicit timeout wins
	if _, err := exec.ExecuteCommand(context.Background(), "dev-1", Command{Name: "unlock", Timeout: time.Second}); err != nil {
		t.Fatalf("ExecuteCommand() error = %v", err)
	}
	if fake.lastCmd.Timeout != time.Second {
		t.Errorf("command timeout = %v, want explicit 1s", fake.lastCmd.Timeout)
	}
}

func TestExecutor_ExecuteCommand_InactiveDevice(t *testing.T) {
	dev := hikvisionDevice("dev-1", nil)
	dev.IsActive = false
	fake := &recordingAdapter{kind: KindHikvision}
	exec, _ := setupExecutor(t, fake, dev)

	_, err := exec.ExecuteCommand(context.Background(), "dev-1", Command{Name: "unlock"})
	if !errors.Is(err, device.ErrDeviceInactive) {
		t.Errorf("ExecuteCommand() error = %v, want ErrDeviceInactive", err)
	}
	if fake.lastCmd.Name != "" {
		t.Error("adapter was called for an inactive device")
	}
}

func TestExecutor_ExecuteCommand_DeviceNotFound(t *testing.T) {
	exec, _ := setupExecutor(t, &recordingAdapter{kind: KindHikvision})

	_, err := exec.ExecuteCommand(context.Background(), "ghost", Command{Name: "unlock"})
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("ExecuteCommand() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestExecutor_ExecuteCommand_AdapterErrorPropagates(t *testing.T) {
	fake := &recordingAdapter{kind: KindHikvision, err: ErrCommandFailed}
	exec, _ := setupExecutor(t, fake, hikvisionDevice("dev-1", nil))

	_, err := exec.ExecuteCommand(context.Background(), "dev-1", Command{Name: "addUser"})
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("ExecuteCommand() error = %v, want ErrCommandFailed unchanged", err)
	}
}

func TestExecutor_ExecuteCommand_TamperedCredentials(t *testing.T) {
	box := testBox(t)
	sealed := sealedCreds(t, box, "admin", "s3cret")
	sealed[len(sealed)-1] ^= 0xFF
	dev := hikvisionDevice("dev-1", sealed)

	fake := &recordingAdapter{kind: KindHikvision}
	store := newFakeStore(dev)
	reg := NewRegistry()
	reg.Register(fake)
	exec := NewExecutor(store, reg, box, time.Second)

	_, err := exec.ExecuteCommand(context.Background(), "dev-1", Command{Name: "unlock"})
	if !errors.Is(err, ErrCredentialsUnavailable) {
		t.Errorf("ExecuteCommand() error = %v, want ErrCredentialsUnavailable", err)
	}
}

func TestExecutor_TestConnection_PersistsStatus(t *testing.T) {
	fake := &recordingAdapter{kind: KindHikvision, connected: true}
	exec, store := setupExecutor(t, fake, hikvisionDevice("dev-1", nil))

	if !exec.TestConnection(context.Background(), "dev-1") {
		t.Error("TestConnection() = false, want true")
	}
	if store.statuses["dev-1"] != device.StatusOnline {
		t.Errorf("persisted status = %q, want online", store.statuses["dev-1"])
	}

	fake.connected = false
	if exec.TestConnection(context.Background(), "dev-1") {
		t.Error("TestConnection() = true, want false")
	}
	if store.statuses["dev-1"] != device.StatusOffline {
		t.Errorf("persisted status = %q, want offline", store.statuses["dev-1"])
	}
}

func TestExecutor_TestConnection_UnknownDevice(t *testing.T) {
	exec, _ := setupExecutor(t, &recordingAdapter{kind: KindHikvision})

	// Never errors, never panics
	if exec.TestConnection(context.Background(), "ghost") {
		t.Error("TestConnection() unknown device = true, want false")
	}
}

func TestExecutor_StubCommandsSucceed(t *testing.T) {
	// A TCP device with an unknown vendor resolves to the stub
	dev := &device.Device{
		ID:             "dev-stub",
		OrganizationID: "org-1",
		Name:           "Legacy Controller",
		Host:           "10.0.0.9",
		Port:           4370,
		Protocol:       device.ProtocolTCP,
		Type:           device.DeviceTypeDoorController,
		IsActive:       true,
	}

	store := newFakeStore(dev)
	exec := NewExecutor(store, NewRegistry(), testBox(t), time.Second)

	result, err := exec.ExecuteCommand(context.Background(), "dev-stub", Command{Name: "anything"})
	if err != nil {
		t.Fatalf("ExecuteCommand() on stub error = %v", err)
	}
	if !result.Success {
		t.Error("stub command Success = false, want true")
	}
	if len(result.Data) != 0 {
		t.Errorf("stub command Data = %v, want empty", result.Data)
	}

	if exec.TestConnection(context.Background(), "dev-stub") {
		t.Error("stub TestConnection() = true, want false")
	}
}
