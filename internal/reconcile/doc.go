// Package reconcile keeps devices in step with the employee directory.
//
// The engine diffs a desired set of employees (resolved from a directory
// scope) against the sync ledger, the engine's record of what each device
// holds. Missing employees are pushed, stale ones re-pushed on request, and
// departed ones removed. Every (device, employee) pair is one ledger row
// carrying the last intent, outcome and error.
//
// Guarantees:
//
//   - Per-employee isolation: a failed push is recorded and the run
//     continues with the next employee.
//   - Idempotence: re-running the same scope without ForceSync touches
//     nothing already synced.
//   - Removal safety: the ledger row is deleted only after the device
//     confirms the delete, so a failed removal stays visible and
//     retryable.
//   - Per-device serialisation: concurrent runs against one device queue
//     behind a mutex; different devices run in parallel.
//   - Registered targets only: runs refuse unknown or inactive devices up
//     front, so every recorded failure lands on a ledger row the device
//     foreign key accepts.
//
// RetryFailedSyncs replays failed rows with their recorded intent, backing
// off exponentially between consecutive failures so an unreachable device
// is not hammered.
package reconcile
