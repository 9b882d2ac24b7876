package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/accessgrid/fleet-core/internal/adapter"
	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/directory"
)

// fakeDevices answers lookups from a fixed fleet.
type fakeDevices struct {
	fleet map[string]*device.Device
}

func (f *fakeDevices) GetDevice(_ context.Context, id string) (*device.Device, error) {
	d, ok := f.fleet[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	dup := *d
	return &dup, nil
}

// fakeDirectory resolves explicit-ID scopes against a fixed workforce.
type fakeDirectory struct {
	employees map[string]directory.Employee
}

func (f *fakeDirectory) ResolveDesiredSet(_ context.Context, scope directory.Scope) ([]directory.Employee, error) {
	if scope.IsEmpty() {
		return nil, directory.ErrEmptyScope
	}
	var out []directory.Employee
	for _, id := range scope.EmployeeIDs {
		if e, ok := f.employees[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetEmployee(_ context.Context, id string) (*directory.Employee, error) {
	e, ok := f.employees[id]
	if !ok {
		return nil, directory.ErrEmployeeNotFound
	}
	return &e, nil
}

// fakeRunner records commands and fails on demand, keyed by command name
// or the employeeId parameter.
type fakeRunner struct {
	mu       sync.Mutex
	commands []adapter.Command
	failFor  map[string]error
}

func (f *fakeRunner) ExecuteCommand(_ context.Context, _ string, cmd adapter.Command) (*adapter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	if err, ok := f.failFor[cmd.Name]; ok {
		return nil, err
	}
	if id, _ := cmd.Parameters["employeeId"].(string); id != "" {
		if err, ok := f.failFor[id]; ok {
			return nil, err
		}
	}
	return &adapter.Result{Success: true}, nil
}

func (f *fakeRunner) commandNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.commands))
	for i, c := range f.commands {
		names[i] = c.Name
	}
	return names
}

func (f *fakeRunner) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = nil
}

func employee(id, name string, creds ...directory.Credential) directory.Employee {
	return directory.Employee{
		ID:             id,
		OrganizationID: "org-1",
		Name:           name,
		Active:         true,
		Credentials:    creds,
	}
}

func setupEngine(t *testing.T, employees ...directory.Employee) (*Engine, *fakeRunner, Repository) {
	t.Helper()

	dir := &fakeDirectory{employees: make(map[string]directory.Employee)}
	for _, e := range employees {
		dir.employees[e.ID] = e
	}
	runner := &fakeRunner{failFor: make(map[string]error)}
	ledger := NewSQLiteRepository(setupTestDB(t))
	fleet := &fakeDevices{fleet: map[string]*device.Device{
		"dev-1": {ID: "dev-1", Name: "Lobby Terminal", IsActive: true},
		"dev-2": {ID: "dev-2", Name: "Warehouse Gate", IsActive: true},
	}}
	engine := NewEngine(fleet, dir, ledger, runner, 5*time.Millisecond, 20*time.Millisecond)
	return engine, runner, ledger
}

func scopeOf(ids ...string) directory.Scope {
	return directory.Scope{EmployeeIDs: ids}
}

func TestSyncEmployees_InitialAdds(t *testing.T) {
	engine, runner, ledger := setupEngine(t,
		employee("emp-1", "Alice"),
		employee("emp-2", "Bob"),
	)

	summary, err := engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1", "emp-2"), Options{})
	if err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}

	if summary.Added != 2 || summary.Updated != 0 || summary.Removed != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 2 added", summary)
	}
	if len(summary.Pushed) != 2 {
		t.Errorf("Pushed = %+v, want both employees", summary.Pushed)
	}

	records, err := ledger.ListByDevice(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ledger has %d rows, want 2", len(records))
	}
	for _, rec := range records {
		if rec.Status != StatusSynced || rec.Type != SyncTypeAdd {
			t.Errorf("record = %+v, want synced add", rec)
		}
		if rec.SyncedAt == nil || rec.SyncAttempted == nil {
			t.Errorf("record %s missing timestamps", rec.EmployeeID)
		}
	}

	for _, name := range runner.commandNames() {
		if name != "addUser" {
			t.Errorf("unexpected command %q for credential-less employees", name)
		}
	}
}

func TestSyncEmployees_CredentialCommands(t *testing.T) {
	engine, runner, _ := setupEngine(t,
		employee("emp-1", "Alice",
			directory.Credential{ID: "c1", EmployeeID: "emp-1", Type: directory.CredentialFace, Value: "face-blob", Active: true},
			directory.Credential{ID: "c2", EmployeeID: "emp-1", Type: directory.CredentialCard, Value: "CARD001", Active: true},
			directory.Credential{ID: "c3", EmployeeID: "emp-1", Type: directory.CredentialPIN, Value: "4321", Active: true},
		),
	)

	if _, err := engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1"), Options{}); err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}

	names := runner.commandNames()
	want := []string{"addUser", "addFace", "addCard"}
	if len(names) != len(want) {
		t.Fatalf("commands = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	// PIN rides inside the user record, not a separate command
	if pin, _ := runner.commands[0].Parameters["pin"].(string); pin != "4321" {
		t.Errorf("addUser pin = %q, want 4321", pin)
	}
}

func TestSyncEmployees_IdempotentByDefault(t *testing.T) {
	engine, runner, _ := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))
	ctx := context.Background()

	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1", "emp-2"), Options{}); err != nil {
		t.Fatalf("first SyncEmployees() error = %v", err)
	}
	runner.reset()

	summary, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1", "emp-2"), Options{})
	if err != nil {
		t.Fatalf("second SyncEmployees() error = %v", err)
	}
	if summary.Added != 0 || summary.Updated != 0 || summary.Removed != 0 || summary.Failed != 0 {
		t.Errorf("second run summary = %+v, want all zero", summary)
	}
	if len(runner.commandNames()) != 0 {
		t.Errorf("second run sent commands %v, want none", runner.commandNames())
	}
}

func TestSyncEmployees_ForceSync(t *testing.T) {
	engine, runner, _ := setupEngine(t, employee("emp-1", "Alice"))
	ctx := context.Background()

	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1"), Options{}); err != nil {
		t.Fatalf("first SyncEmployees() error = %v", err)
	}
	runner.reset()

	summary, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1"), Options{ForceSync: true})
	if err != nil {
		t.Fatalf("forced SyncEmployees() error = %v", err)
	}
	if summary.Updated != 1 || summary.Added != 0 {
		t.Errorf("summary = %+v, want 1 updated", summary)
	}
	if names := runner.commandNames(); len(names) != 1 || names[0] != "updateUser" {
		t.Errorf("commands = %v, want [updateUser]", names)
	}
}

func TestSyncEmployees_TwoPassConverges(t *testing.T) {
	engine, runner, ledger := setupEngine(t,
		employee("emp-1", "Alice"),
		employee("emp-2", "Bob"),
		employee("emp-3", "Carol"),
	)
	ctx := context.Background()

	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1", "emp-2"), Options{}); err != nil {
		t.Fatalf("first SyncEmployees() error = %v", err)
	}
	runner.reset()

	summary, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-2", "emp-3"), Options{RemoveMissing: true})
	if err != nil {
		t.Fatalf("second SyncEmployees() error = %v", err)
	}

	if summary.Added != 1 || summary.Removed != 1 || summary.Updated != 0 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 1 added 1 removed", summary)
	}

	records, err := ledger.ListByDevice(ctx, "dev-1")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	got := make(map[string]bool)
	for _, rec := range records {
		got[rec.EmployeeID] = true
	}
	if len(got) != 2 || !got["emp-2"] || !got["emp-3"] {
		t.Errorf("ledger = %v, want exactly emp-2 and emp-3", got)
	}
}

func TestSyncEmployees_WithoutRemoveMissing(t *testing.T) {
	engine, _, ledger := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))
	ctx := context.Background()

	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1", "emp-2"), Options{}); err != nil {
		t.Fatalf("first SyncEmployees() error = %v", err)
	}

	summary, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1"), Options{})
	if err != nil {
		t.Fatalf("second SyncEmployees() error = %v", err)
	}
	if summary.Removed != 0 {
		t.Errorf("Removed = %d, want 0 without RemoveMissing", summary.Removed)
	}

	records, _ := ledger.ListByDevice(ctx, "dev-1")
	if len(records) != 2 {
		t.Errorf("ledger has %d rows, want 2 (emp-2 untouched)", len(records))
	}
}

func TestSyncEmployees_FailureIsIsolated(t *testing.T) {
	engine, runner, ledger := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))
	runner.failFor["emp-1"] = adapter.ErrConnectionFailed

	summary, err := engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1", "emp-2"), Options{})
	if err != nil {
		t.Fatalf("SyncEmployees() error = %v, failures must not fail the run", err)
	}

	if summary.Added != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 1 added 1 failed", summary)
	}
	if len(summary.Errors) != 1 {
		t.Errorf("Errors = %v, want one entry", summary.Errors)
	}

	records, _ := ledger.ListByDevice(context.Background(), "dev-1")
	byID := make(map[string]SyncRecord)
	for _, rec := range records {
		byID[rec.EmployeeID] = rec
	}
	if byID["emp-1"].Status != StatusFailed {
		t.Errorf("emp-1 = %+v, want failed", byID["emp-1"])
	}
	if byID["emp-1"].ErrorMessage == nil {
		t.Error("emp-1 failure has no error message")
	}
	if byID["emp-2"].Status != StatusSynced {
		t.Errorf("emp-2 = %+v, want synced despite emp-1 failing first", byID["emp-2"])
	}
}

func TestSyncEmployees_UnknownDevice(t *testing.T) {
	engine, runner, ledger := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))

	summary, err := engine.SyncEmployees(context.Background(), "no-such-device", scopeOf("emp-1", "emp-2"), Options{})
	if !errors.Is(err, device.ErrDeviceNotFound) {
		t.Fatalf("SyncEmployees() error = %v, want ErrDeviceNotFound", err)
	}
	if summary != nil {
		t.Errorf("summary = %+v, want nil", summary)
	}
	if len(runner.commandNames()) != 0 {
		t.Errorf("commands = %v, want none against an unregistered device", runner.commandNames())
	}

	records, err := ledger.ListByDevice(context.Background(), "no-such-device")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("ledger has %d rows for an unregistered device, want 0", len(records))
	}
}

func TestSyncEmployees_InactiveDevice(t *testing.T) {
	engine, runner, _ := setupEngine(t, employee("emp-1", "Alice"))
	engine.devices.(*fakeDevices).fleet["dev-1"].IsActive = false

	summary, err := engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1"), Options{})
	if !errors.Is(err, device.ErrDeviceInactive) {
		t.Fatalf("SyncEmployees() error = %v, want ErrDeviceInactive", err)
	}
	if summary != nil {
		t.Errorf("summary = %+v, want nil", summary)
	}
	if len(runner.commandNames()) != 0 {
		t.Errorf("commands = %v, want none against an inactive device", runner.commandNames())
	}
}

func TestSyncEmployees_FailedRowsSurviveForeignKey(t *testing.T) {
	engine, runner, ledger := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))
	runner.failFor["emp-1"] = adapter.ErrConnectionFailed
	runner.failFor["emp-2"] = adapter.ErrConnectionFailed

	summary, err := engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1", "emp-2"), Options{})
	if err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}
	if summary.Failed != 2 {
		t.Fatalf("summary.Failed = %d, want 2", summary.Failed)
	}

	// Every counted failure must exist as a persisted FAILED row; the ledger
	// schema enforces the devices foreign key, as production does.
	records, err := ledger.ListFailed(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("ListFailed() error = %v", err)
	}
	if len(records) != summary.Failed {
		t.Fatalf("ledger holds %d failed rows, summary counted %d", len(records), summary.Failed)
	}
	for _, rec := range records {
		if rec.ErrorMessage == nil || *rec.ErrorMessage == "" {
			t.Errorf("%s failure row has no error message", rec.EmployeeID)
		}
	}
}

func TestSyncEmployees_FailedRemovalKeepsRow(t *testing.T) {
	engine, runner, ledger := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))
	ctx := context.Background()

	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1", "emp-2"), Options{}); err != nil {
		t.Fatalf("first SyncEmployees() error = %v", err)
	}

	runner.failFor["deleteUser"] = adapter.ErrCommandFailed
	summary, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-2"), Options{RemoveMissing: true})
	if err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}
	if summary.Removed != 0 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 0 removed 1 failed", summary)
	}

	records, _ := ledger.ListByDevice(ctx, "dev-1")
	byID := make(map[string]SyncRecord)
	for _, rec := range records {
		byID[rec.EmployeeID] = rec
	}
	rec, ok := byID["emp-1"]
	if !ok {
		t.Fatal("emp-1 row deleted despite the device-side delete failing")
	}
	if rec.Status != StatusFailed || rec.Type != SyncTypeRemove {
		t.Errorf("emp-1 = %+v, want failed remove", rec)
	}
}

func TestRetryFailedSyncs(t *testing.T) {
	engine, runner, ledger := setupEngine(t, employee("emp-1", "Alice"))
	ctx := context.Background()

	runner.failFor["emp-1"] = adapter.ErrConnectionFailed
	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1"), Options{}); err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}

	// Device comes back
	delete(runner.failFor, "emp-1")
	runner.reset()

	summary, err := engine.RetryFailedSyncs(ctx, "dev-1")
	if err != nil {
		t.Fatalf("RetryFailedSyncs() error = %v", err)
	}
	if summary.Added != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want the add replayed", summary)
	}

	records, _ := ledger.ListByDevice(ctx, "dev-1")
	if len(records) != 1 || records[0].Status != StatusSynced {
		t.Errorf("ledger = %+v, want emp-1 synced", records)
	}
}

func TestRetryFailedSyncs_ReplaysRemoveIntent(t *testing.T) {
	engine, runner, ledger := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))
	ctx := context.Background()

	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1", "emp-2"), Options{}); err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}
	runner.failFor["deleteUser"] = adapter.ErrCommandFailed
	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-2"), Options{RemoveMissing: true}); err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}

	delete(runner.failFor, "deleteUser")
	runner.reset()

	summary, err := engine.RetryFailedSyncs(ctx, "dev-1")
	if err != nil {
		t.Fatalf("RetryFailedSyncs() error = %v", err)
	}
	if summary.Removed != 1 {
		t.Errorf("summary = %+v, want the removal replayed", summary)
	}
	if names := runner.commandNames(); len(names) != 1 || names[0] != "deleteUser" {
		t.Errorf("commands = %v, want [deleteUser]", names)
	}

	records, _ := ledger.ListByDevice(ctx, "dev-1")
	if len(records) != 1 || records[0].EmployeeID != "emp-2" {
		t.Errorf("ledger = %+v, want only emp-2", records)
	}
}

func TestRetryFailedSyncs_UnknownDevice(t *testing.T) {
	engine, _, _ := setupEngine(t, employee("emp-1", "Alice"))

	if _, err := engine.RetryFailedSyncs(context.Background(), "no-such-device"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("RetryFailedSyncs() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRetryFailedSyncs_Nothing(t *testing.T) {
	engine, _, _ := setupEngine(t, employee("emp-1", "Alice"))

	_, err := engine.RetryFailedSyncs(context.Background(), "dev-1")
	if !errors.Is(err, ErrNothingToRetry) {
		t.Errorf("RetryFailedSyncs() error = %v, want ErrNothingToRetry", err)
	}
}

func TestRetryFailedSyncs_BacksOffBetweenFailures(t *testing.T) {
	engine, runner, _ := setupEngine(t,
		employee("emp-1", "Alice"),
		employee("emp-2", "Bob"),
		employee("emp-3", "Carol"),
	)
	ctx := context.Background()

	runner.failFor["addUser"] = adapter.ErrConnectionFailed
	if _, err := engine.SyncEmployees(ctx, "dev-1", scopeOf("emp-1", "emp-2", "emp-3"), Options{}); err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}

	// Still down: three failed retries with 5ms, 10ms, 20ms waits between
	start := time.Now()
	summary, err := engine.RetryFailedSyncs(ctx, "dev-1")
	if err != nil {
		t.Fatalf("RetryFailedSyncs() error = %v", err)
	}
	if summary.Failed != 3 {
		t.Errorf("summary = %+v, want 3 failed", summary)
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("retry run took %v, want at least the summed backoff", elapsed)
	}
}

func TestRetryFailedSyncs_ContextCancelled(t *testing.T) {
	engine, runner, _ := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))

	runner.failFor["addUser"] = adapter.ErrConnectionFailed
	if _, err := engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1", "emp-2"), Options{}); err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.RetryFailedSyncs(ctx, "dev-1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RetryFailedSyncs() error = %v, want context.Canceled", err)
	}
}

func TestGetSyncStatus(t *testing.T) {
	engine, runner, _ := setupEngine(t, employee("emp-1", "Alice"), employee("emp-2", "Bob"))
	runner.failFor["emp-2"] = adapter.ErrCommandFailed

	if _, err := engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1", "emp-2"), Options{}); err != nil {
		t.Fatalf("SyncEmployees() error = %v", err)
	}

	status, err := engine.GetSyncStatus(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("GetSyncStatus() error = %v", err)
	}
	if status.Synced != 1 || status.Failed != 1 || len(status.Records) != 2 {
		t.Errorf("status = %+v, want 1 synced 1 failed", status)
	}
}

func TestSyncEmployees_SameDeviceSerialised(t *testing.T) {
	engine, _, _ := setupEngine(t, employee("emp-1", "Alice"))

	var mu sync.Mutex
	var active, maxActive int

	// Swap in a runner that tracks concurrent executions
	engine.runner = commandFunc(func(ctx context.Context, deviceID string, cmd adapter.Command) (*adapter.Result, error) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return &adapter.Result{Success: true}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = engine.SyncEmployees(context.Background(), "dev-1", scopeOf("emp-1"), Options{ForceSync: true})
		}()
	}
	wg.Wait()

	if maxActive > 1 {
		t.Errorf("observed %d concurrent commands against one device, want runs serialised", maxActive)
	}
}

type commandFunc func(ctx context.Context, deviceID string, cmd adapter.Command) (*adapter.Result, error)

func (f commandFunc) ExecuteCommand(ctx context.Context, deviceID string, cmd adapter.Command) (*adapter.Result, error) {
	return f(ctx, deviceID, cmd)
}
