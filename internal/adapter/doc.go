// Package adapter translates vendor-neutral device operations into the
// protocols spoken by access-control hardware.
//
// # Architecture
//
//	Executor (credential boundary, IsActive gate, telemetry)
//	    └── Registry (Kind → Adapter resolution)
//	            ├── Hikvision (ISAPI, digest auth)
//	            ├── ZKTeco (terminal HTTP API, basic auth)
//	            ├── Dahua (CGI, digest auth)
//	            └── Stub (no-op for unsupported hardware)
//
// # Adapter selection
//
// Classify maps (manufacturer, protocol) to a Kind. It is pure and total:
// every device resolves to exactly one kind every time. Unknown
// manufacturers on HTTP or HTTPS fall back to the Hikvision adapter, the
// historical fleet default; everything else gets the stub, whose commands
// succeed without side effects and whose connectivity always reads false.
//
// # Credential boundary
//
// Devices carry sealed credential blobs. The Executor unseals a blob
// immediately before the adapter call and passes plaintext credentials as a
// parameter, so they live only for the duration of one request. Adapters
// are stateless and never store credentials.
//
// # Error handling
//
// TestConnection never errors; unreachable is false. Every other operation
// returns adapter sentinels (ErrCommandFailed, ErrConnectionFailed,
// ErrBadCredentials, ErrUnsupported) that callers branch on with errors.Is.
package adapter
