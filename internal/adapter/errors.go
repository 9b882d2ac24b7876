package adapter

import "errors"

// Domain errors for the adapter package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, adapter.ErrCommandFailed) {
//	    // handle device-side failure
//	}
var (
	// ErrCommandFailed is returned when a device rejects or fails a command.
	ErrCommandFailed = errors.New("adapter: command failed")

	// ErrConnectionFailed is returned when the device host is unreachable.
	ErrConnectionFailed = errors.New("adapter: connection failed")

	// ErrUnsupported is returned when an adapter does not implement an
	// operation for its vendor (e.g. webhooks on a stub device).
	ErrUnsupported = errors.New("adapter: operation not supported")

	// ErrUnknownCommand is returned when a command name has no vendor mapping.
	ErrUnknownCommand = errors.New("adapter: unknown command")

	// ErrBadCredentials is returned when the device rejects authentication.
	ErrBadCredentials = errors.New("adapter: bad credentials")

	// ErrCredentialsUnavailable is returned by the executor when a device
	// has no sealed credentials or the blob cannot be opened.
	ErrCredentialsUnavailable = errors.New("adapter: credentials unavailable")
)
