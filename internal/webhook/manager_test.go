package webhook

import (
	"context"
	"errors"
	"testing"

	"github.com/accessgrid/fleet-core/internal/adapter"
)

// fakeGateway stands in for the adapter executor.
type fakeGateway struct {
	supported    bool
	supportErr   error
	configureErr error
	deleteErr    error
	configured   []adapter.WebhookConfig
	deleted      []string
}

func (f *fakeGateway) SupportsWebhooks(context.Context, string) (bool, error) {
	return f.supported, f.supportErr
}

func (f *fakeGateway) ConfigureEventHost(_ context.Context, _ string, cfg adapter.WebhookConfig) error {
	if f.configureErr != nil {
		return f.configureErr
	}
	f.configured = append(f.configured, cfg)
	return nil
}

func (f *fakeGateway) DeleteWebhooks(_ context.Context, deviceID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, deviceID)
	return nil
}

func TestManager_Configure(t *testing.T) {
	gateway := &fakeGateway{supported: true}
	repo := NewSQLiteRepository(setupTestDB(t))
	mgr := NewManager(gateway, repo)

	hook, err := mgr.Configure(context.Background(), "dev-1", ConfigureRequest{
		URL:        "http://fleet.local:8080/webhook/device-events",
		EventTypes: []string{"AccessControllerEvent"},
	})
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	if hook.HostID != "1" {
		t.Errorf("HostID = %q, want default slot 1", hook.HostID)
	}
	if hook.Protocol != "HTTP" || hook.Format != "JSON" {
		t.Errorf("defaults not applied: %+v", hook)
	}
	if !hook.Active {
		t.Error("hook not active")
	}

	if len(gateway.configured) != 1 {
		t.Fatalf("device received %d configs, want 1", len(gateway.configured))
	}
	if gateway.configured[0].URL != hook.URL {
		t.Errorf("device config URL = %q, want %q", gateway.configured[0].URL, hook.URL)
	}

	stored, err := repo.GetByHostID(context.Background(), "dev-1", "1")
	if err != nil {
		t.Fatalf("GetByHostID() error = %v", err)
	}
	if stored.URL != hook.URL {
		t.Errorf("persisted URL = %q, want %q", stored.URL, hook.URL)
	}
}

func TestManager_Configure_Unsupported(t *testing.T) {
	gateway := &fakeGateway{supported: false}
	repo := NewSQLiteRepository(setupTestDB(t))
	mgr := NewManager(gateway, repo)

	_, err := mgr.Configure(context.Background(), "dev-1", ConfigureRequest{URL: "http://x/hook"})
	if !errors.Is(err, ErrWebhooksUnsupported) {
		t.Errorf("Configure() error = %v, want ErrWebhooksUnsupported", err)
	}
	if len(gateway.configured) != 0 {
		t.Error("device was configured despite lacking support")
	}
	if hooks, _ := repo.ListByDevice(context.Background(), "dev-1"); len(hooks) != 0 {
		t.Error("registration persisted despite lacking support")
	}
}

func TestManager_Configure_MissingURL(t *testing.T) {
	mgr := NewManager(&fakeGateway{supported: true}, NewSQLiteRepository(setupTestDB(t)))

	_, err := mgr.Configure(context.Background(), "dev-1", ConfigureRequest{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Configure() error = %v, want ErrInvalidRequest", err)
	}
}

func TestManager_Configure_DeviceRejects(t *testing.T) {
	gateway := &fakeGateway{supported: true, configureErr: adapter.ErrCommandFailed}
	repo := NewSQLiteRepository(setupTestDB(t))
	mgr := NewManager(gateway, repo)

	_, err := mgr.Configure(context.Background(), "dev-1", ConfigureRequest{URL: "http://x/hook"})
	if !errors.Is(err, adapter.ErrCommandFailed) {
		t.Errorf("Configure() error = %v, want the device failure", err)
	}
	// Nothing persisted when the device never accepted the host
	if hooks, _ := repo.ListByDevice(context.Background(), "dev-1"); len(hooks) != 0 {
		t.Error("registration persisted despite device rejection")
	}
}

func TestManager_Remove(t *testing.T) {
	gateway := &fakeGateway{supported: true}
	repo := NewSQLiteRepository(setupTestDB(t))
	mgr := NewManager(gateway, repo)

	if _, err := mgr.Configure(context.Background(), "dev-1", ConfigureRequest{URL: "http://x/hook"}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	if err := mgr.Remove(context.Background(), "dev-1", "1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	hook, err := repo.GetByHostID(context.Background(), "dev-1", "1")
	if err != nil {
		t.Fatalf("GetByHostID() error = %v", err)
	}
	if hook.Active {
		t.Error("hook still active after Remove")
	}
	if len(gateway.deleted) != 1 {
		t.Errorf("device-side deletes = %d, want 1", len(gateway.deleted))
	}
}

func TestManager_Remove_DeviceUnreachable(t *testing.T) {
	gateway := &fakeGateway{supported: true}
	repo := NewSQLiteRepository(setupTestDB(t))
	mgr := NewManager(gateway, repo)

	if _, err := mgr.Configure(context.Background(), "dev-1", ConfigureRequest{URL: "http://x/hook"}); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	// Device-side delete is best effort; deactivation proceeds
	gateway.deleteErr = adapter.ErrConnectionFailed
	if err := mgr.Remove(context.Background(), "dev-1", "1"); err != nil {
		t.Fatalf("Remove() error = %v, want unreachable device tolerated", err)
	}

	hook, _ := repo.GetByHostID(context.Background(), "dev-1", "1")
	if hook.Active {
		t.Error("hook still active after Remove")
	}
}
