package directory

import "errors"

var (
	// ErrEmptyScope indicates a scope with no selector set.
	ErrEmptyScope = errors.New("directory: scope selects nothing")

	// ErrInvalidCredentialType indicates an unrecognised credential type filter.
	ErrInvalidCredentialType = errors.New("directory: invalid credential type")

	// ErrEmployeeNotFound indicates a referenced employee does not exist.
	ErrEmployeeNotFound = errors.New("directory: employee not found")
)
