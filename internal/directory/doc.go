// Package directory resolves which employees a device should hold.
//
// The employee and credential tables belong to the HR side of the product;
// this package is a read-only view over them. A Scope names a slice of the
// workforce (explicit IDs, a department, a branch, or a whole organization)
// and ResolveDesiredSet turns it into concrete employees with their active
// credentials attached. The reconciliation engine diffs that desired set
// against what a device actually holds.
//
// Inactive employees and inactive credentials are invisible here: revoking
// access upstream is enough for the next sync to remove it from devices.
package directory
