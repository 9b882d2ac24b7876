package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/accessgrid/fleet-core/internal/adapter"
	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/directory"
	"github.com/accessgrid/fleet-core/internal/infrastructure/mqtt"
)

// CommandRunner executes commands against devices. Satisfied by
// adapter.Executor; tests install fakes.
type CommandRunner interface {
	ExecuteCommand(ctx context.Context, deviceID string, cmd adapter.Command) (*adapter.Result, error)
}

// DeviceLookup loads a device by ID. Satisfied by device.Registry.
type DeviceLookup interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Publisher publishes reconciliation summaries. Satisfied by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Metrics receives reconciliation outcome points. Satisfied by influxdb.Client.
type Metrics interface {
	WriteSyncSummary(deviceID string, added, updated, removed, failed int)
}

// Engine reconciles the directory's desired employee set against what each
// device holds, tracked in the sync ledger.
//
// Runs against the same device are serialised; different devices proceed in
// parallel. Each employee is an isolated unit of work: one failure is
// recorded and the batch continues.
type Engine struct {
	devices   DeviceLookup
	directory directory.Directory
	ledger    Repository
	runner    CommandRunner

	// Backoff between consecutive failures against the same device
	// during retry runs.
	backoffInitial time.Duration
	backoffMax     time.Duration

	logger    device.Logger
	publisher Publisher
	metrics   Metrics
	topics    mqtt.Topics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a reconciliation engine.
func NewEngine(devices DeviceLookup, dir directory.Directory, ledger Repository, runner CommandRunner, backoffInitial, backoffMax time.Duration) *Engine {
	if backoffInitial <= 0 {
		backoffInitial = time.Second
	}
	if backoffMax < backoffInitial {
		backoffMax = backoffInitial
	}
	return &Engine{
		devices:        devices,
		directory:      dir,
		ledger:         ledger,
		runner:         runner,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
		logger:         noopLogger{},
		locks:          make(map[string]*sync.Mutex),
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SetLogger attaches a structured logger.
func (e *Engine) SetLogger(logger device.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetPublisher attaches an MQTT publisher for run summaries.
func (e *Engine) SetPublisher(p Publisher) {
	e.publisher = p
}

// SetMetrics attaches a metrics sink for run summaries.
func (e *Engine) SetMetrics(m Metrics) {
	e.metrics = m
}

// SyncEmployees reconciles a device against the desired set the scope
// resolves to.
//
// Employees in the desired set but not the ledger are pushed. Employees in
// both are re-pushed only with Options.ForceSync; that includes employees
// whose last attempt failed, so a failed row is not re-attempted by a plain
// sync and recovers via RetryFailedSyncs or ForceSync. Ledger rows whose
// employee left the desired set are removed from the device only with
// Options.RemoveMissing; a removal's ledger row is deleted only after the
// device-side delete succeeds.
//
// Returns device.ErrDeviceNotFound or device.ErrDeviceInactive before any
// work when the target device cannot accept commands. The returned summary
// counts per-employee outcomes; individual failures never fail the run.
func (e *Engine) SyncEmployees(ctx context.Context, deviceID string, scope directory.Scope, opts Options) (*Summary, error) {
	lock := e.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.checkDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	desired, err := e.directory.ResolveDesiredSet(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("resolving desired set: %w", err)
	}

	current, err := e.ledger.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading sync ledger: %w", err)
	}

	currentIDs := make(map[string]SyncRecord, len(current))
	for _, rec := range current {
		currentIDs[rec.EmployeeID] = rec
	}
	desiredIDs := make(map[string]struct{}, len(desired))
	for _, emp := range desired {
		desiredIDs[emp.ID] = struct{}{}
	}

	summary := &Summary{DeviceID: deviceID, StartedAt: time.Now().UTC()}

	for _, emp := range desired {
		_, known := currentIDs[emp.ID]

		var intent SyncType
		switch {
		case !known:
			intent = SyncTypeAdd
		case opts.ForceSync:
			intent = SyncTypeUpdate
		default:
			continue // already synced, nothing to do
		}

		if err := e.syncOne(ctx, deviceID, emp, intent, summary); err != nil {
			e.logger.Warn("employee sync failed",
				"device_id", deviceID, "employee_id", emp.ID, "intent", string(intent), "error", err)
		}
	}

	if opts.RemoveMissing {
		for _, rec := range current {
			if _, wanted := desiredIDs[rec.EmployeeID]; wanted {
				continue
			}
			if err := e.removeOne(ctx, deviceID, rec.EmployeeID, summary); err != nil {
				e.logger.Warn("employee removal failed",
					"device_id", deviceID, "employee_id", rec.EmployeeID, "error", err)
			}
		}
	}

	summary.FinishedAt = time.Now().UTC()
	e.report(deviceID, summary)
	return summary, nil
}

// RetryFailedSyncs replays every failed ledger row for a device, using the
// intent each row recorded. Consecutive failures back off exponentially,
// bounded by the engine's configured maximum; the wait honours ctx.
// Returns ErrNothingToRetry when the ledger holds no failed rows, and
// device.ErrDeviceNotFound or device.ErrDeviceInactive when the target
// device cannot accept commands.
func (e *Engine) RetryFailedSyncs(ctx context.Context, deviceID string) (*Summary, error) {
	lock := e.deviceLock(deviceID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.checkDevice(ctx, deviceID); err != nil {
		return nil, err
	}

	failed, err := e.ledger.ListFailed(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading failed syncs: %w", err)
	}
	if len(failed) == 0 {
		return nil, ErrNothingToRetry
	}

	summary := &Summary{DeviceID: deviceID, StartedAt: time.Now().UTC()}
	delay := e.backoffInitial

	for _, rec := range failed {
		var retryErr error
		switch rec.Type {
		case SyncTypeRemove:
			retryErr = e.removeOne(ctx, deviceID, rec.EmployeeID, summary)
		default:
			emp, err := e.directory.GetEmployee(ctx, rec.EmployeeID)
			if err != nil {
				if errors.Is(err, directory.ErrEmployeeNotFound) {
					// Left the directory since the original attempt;
					// the record keeps its failure until a sync with
					// RemoveMissing cleans the device up.
					e.recordFailure(ctx, deviceID, rec.EmployeeID, rec.Type, err, summary)
					retryErr = err
					break
				}
				return nil, fmt.Errorf("loading employee for retry: %w", err)
			}
			retryErr = e.syncOne(ctx, deviceID, *emp, rec.Type, summary)
		}

		if retryErr == nil {
			delay = e.backoffInitial
			continue
		}

		// Back off before hammering the same device again
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			summary.FinishedAt = time.Now().UTC()
			return summary, ctx.Err()
		}
		delay *= 2
		if delay > e.backoffMax {
			delay = e.backoffMax
		}
	}

	summary.FinishedAt = time.Now().UTC()
	e.report(deviceID, summary)
	return summary, nil
}

// checkDevice verifies the target exists and accepts commands. Without this
// every ledger write in the run would bounce off the device_id foreign key
// while the batch reported failures that were never persisted.
func (e *Engine) checkDevice(ctx context.Context, deviceID string) error {
	dev, err := e.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.IsActive {
		return device.ErrDeviceInactive
	}
	return nil
}

// GetSyncStatus returns the ledger rows and aggregate counts for a device.
func (e *Engine) GetSyncStatus(ctx context.Context, deviceID string) (*Status, error) {
	records, err := e.ledger.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading sync ledger: %w", err)
	}

	status := &Status{DeviceID: deviceID, Records: records}
	for _, rec := range records {
		switch rec.Status {
		case StatusSynced:
			status.Synced++
		case StatusFailed:
			status.Failed++
		}
	}
	return status, nil
}

// syncOne pushes one employee to the device and records the outcome.
func (e *Engine) syncOne(ctx context.Context, deviceID string, emp directory.Employee, intent SyncType, summary *Summary) error {
	if err := e.pushEmployee(ctx, deviceID, emp, intent); err != nil {
		e.recordFailure(ctx, deviceID, emp.ID, intent, err, summary)
		return err
	}

	now := time.Now().UTC()
	record := &SyncRecord{
		DeviceID:      deviceID,
		EmployeeID:    emp.ID,
		Status:        StatusSynced,
		Type:          intent,
		SyncAttempted: &now,
		SyncedAt:      &now,
	}
	if err := e.ledger.Upsert(ctx, record); err != nil {
		return fmt.Errorf("recording sync: %w", err)
	}

	types := make([]directory.CredentialType, 0, len(emp.Credentials))
	for _, c := range emp.Credentials {
		types = append(types, c.Type)
	}
	summary.Pushed = append(summary.Pushed, Pushed{EmployeeID: emp.ID, Name: emp.Name, Credentials: types})

	switch intent {
	case SyncTypeAdd:
		summary.Added++
	case SyncTypeUpdate:
		summary.Updated++
	}
	return nil
}

// removeOne deletes one employee from the device. The ledger row goes only
// after the device confirms; a failed delete records a failed remove row.
func (e *Engine) removeOne(ctx context.Context, deviceID, employeeID string, summary *Summary) error {
	cmd := adapter.Command{
		Name:       "deleteUser",
		Parameters: map[string]any{"employeeId": employeeID},
	}
	if _, err := e.runner.ExecuteCommand(ctx, deviceID, cmd); err != nil {
		e.recordFailure(ctx, deviceID, employeeID, SyncTypeRemove, err, summary)
		return err
	}

	if err := e.ledger.Delete(ctx, deviceID, employeeID); err != nil && !errors.Is(err, ErrRecordNotFound) {
		return fmt.Errorf("deleting sync record: %w", err)
	}
	summary.Removed++
	return nil
}

// pushEmployee sends the user record and each credential to the device.
func (e *Engine) pushEmployee(ctx context.Context, deviceID string, emp directory.Employee, intent SyncType) error {
	name := "addUser"
	if intent == SyncTypeUpdate {
		name = "updateUser"
	}

	params := map[string]any{
		"employeeId": emp.ID,
		"name":       emp.Name,
	}
	for _, c := range emp.Credentials {
		// PIN travels inside the user record on every vendor
		if c.Type == directory.CredentialPIN {
			params["pin"] = c.Value
		}
	}

	if _, err := e.runner.ExecuteCommand(ctx, deviceID, adapter.Command{Name: name, Parameters: params}); err != nil {
		return err
	}

	for _, c := range emp.Credentials {
		var cmd adapter.Command
		switch c.Type {
		case directory.CredentialFace:
			cmd = adapter.Command{Name: "addFace", Parameters: map[string]any{
				"employeeId": emp.ID, "faceData": c.Value,
			}}
		case directory.CredentialCard:
			cmd = adapter.Command{Name: "addCard", Parameters: map[string]any{
				"employeeId": emp.ID, "cardNo": c.Value,
			}}
		case directory.CredentialFingerprint:
			cmd = adapter.Command{Name: "addFingerprint", Parameters: map[string]any{
				"employeeId": emp.ID, "template": c.Value,
			}}
		default:
			continue
		}
		if _, err := e.runner.ExecuteCommand(ctx, deviceID, cmd); err != nil {
			return fmt.Errorf("pushing %s credential: %w", c.Type, err)
		}
	}
	return nil
}

// recordFailure upserts a failed ledger row and counts it on the summary.
func (e *Engine) recordFailure(ctx context.Context, deviceID, employeeID string, intent SyncType, cause error, summary *Summary) {
	now := time.Now().UTC()
	msg := cause.Error()
	record := &SyncRecord{
		DeviceID:      deviceID,
		EmployeeID:    employeeID,
		Status:        StatusFailed,
		Type:          intent,
		SyncAttempted: &now,
		ErrorMessage:  &msg,
	}
	if err := e.ledger.Upsert(ctx, record); err != nil {
		e.logger.Error("recording sync failure", "device_id", deviceID, "employee_id", employeeID, "error", err)
	}
	summary.Failed++
	summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", employeeID, msg))
}

// report publishes the run summary to MQTT and metrics, best effort.
func (e *Engine) report(deviceID string, summary *Summary) {
	if e.metrics != nil {
		e.metrics.WriteSyncSummary(deviceID, summary.Added, summary.Updated, summary.Removed, summary.Failed)
	}
	if e.publisher != nil {
		payload, err := json.Marshal(summary)
		if err == nil {
			if err := e.publisher.Publish(e.topics.SyncSummary(deviceID), payload, 1, false); err != nil {
				e.logger.Warn("publishing sync summary", "device_id", deviceID, "error", err)
			}
		}
	}
	e.logger.Info("sync run finished",
		"device_id", deviceID,
		"added", summary.Added,
		"updated", summary.Updated,
		"removed", summary.Removed,
		"failed", summary.Failed,
	)
}

// deviceLock returns the mutex serialising runs against one device.
func (e *Engine) deviceLock(deviceID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[deviceID] = lock
	}
	return lock
}
