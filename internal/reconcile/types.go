package reconcile

import (
	"time"

	"github.com/accessgrid/fleet-core/internal/directory"
)

// SyncStatus is the outcome recorded for an employee on a device.
type SyncStatus string

const (
	// StatusSynced means the device holds the employee as last pushed.
	StatusSynced SyncStatus = "synced"

	// StatusFailed means the last attempt against the device failed.
	StatusFailed SyncStatus = "failed"
)

// SyncType is the last intent recorded for an employee on a device.
// Retry replays this intent.
type SyncType string

const (
	SyncTypeAdd    SyncType = "add"
	SyncTypeUpdate SyncType = "update"
	SyncTypeRemove SyncType = "remove"
)

// SyncRecord is one row of the per-device sync ledger. The ledger is the
// engine's view of what each device holds; there is no removed state, a
// completed removal deletes the row.
type SyncRecord struct {
	DeviceID      string     `json:"deviceId"`
	EmployeeID    string     `json:"employeeId"`
	Status        SyncStatus `json:"status"`
	Type          SyncType   `json:"type"`
	SyncAttempted *time.Time `json:"syncAttempted,omitempty"`
	SyncedAt      *time.Time `json:"syncedAt,omitempty"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
}

// Options tunes a reconciliation run.
type Options struct {
	// ForceSync re-pushes employees the ledger already marks synced.
	ForceSync bool `json:"forceSync"`

	// RemoveMissing deletes employees from the device that the desired
	// set no longer contains.
	RemoveMissing bool `json:"removeMissing"`
}

// Summary reports the outcome of one reconciliation run.
type Summary struct {
	DeviceID   string    `json:"deviceId"`
	Added      int       `json:"added"`
	Updated    int       `json:"updated"`
	Removed    int       `json:"removed"`
	Failed     int       `json:"failed"`
	Pushed     []Pushed  `json:"pushed,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Pushed records what was sent to the device for one employee.
type Pushed struct {
	EmployeeID  string                     `json:"employeeId"`
	Name        string                     `json:"name"`
	Credentials []directory.CredentialType `json:"credentials,omitempty"`
}

// Status aggregates the ledger for one device.
type Status struct {
	DeviceID string       `json:"deviceId"`
	Records  []SyncRecord `json:"records"`
	Synced   int          `json:"synced"`
	Failed   int          `json:"failed"`
}
