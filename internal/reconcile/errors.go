package reconcile

import "errors"

var (
	// ErrRecordNotFound indicates no ledger row exists for the pair.
	ErrRecordNotFound = errors.New("reconcile: sync record not found")

	// ErrNothingToRetry indicates the device has no failed ledger rows.
	ErrNothingToRetry = errors.New("reconcile: no failed syncs to retry")
)
