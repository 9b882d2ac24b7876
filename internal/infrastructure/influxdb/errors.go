package influxdb

import "errors"

// Sentinel errors, matchable with errors.Is.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means metrics are turned off in config; callers treat this
	// as "run without metrics", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
