// Package device manages the fleet's device inventory: registration,
// configuration, and configuration templates.
//
// # Architecture
//
// The package is layered:
//
//	Registry (cached, validated CRUD)
//	    └── Repository (SQLite persistence)
//	Templates (merge + apply service)
//	    ├── TemplateRepository
//	    └── ConfigurationRepository
//
// The Registry keeps an in-memory cache of devices populated at startup via
// RefreshCache and kept consistent by the CRUD methods. All reads hand out
// deep copies so callers can never mutate cached rows.
//
// # Credentials
//
// Devices carry only a sealed credential blob (CredentialsSealed). Sealing
// and opening live in the secrets package; the plaintext never appears in
// this package, in API responses, or in the database.
//
// # Activation
//
// IsActive gates every operation that touches the physical device. Inactive
// devices remain registered (their history and ledger rows survive) but
// commands, syncs and template pushes are refused with ErrDeviceInactive.
//
// # Templates
//
// A Template holds configuration defaults scoped to an organization and
// optionally a manufacturer/model pair. Application is non-destructive:
// defaults fill gaps in the device's existing configuration and never
// overwrite values already set. AutoApply picks the highest-priority
// matching template (ties broken by name) and reports how many matched;
// zero matches is a no-op, not an error.
package device
