package api

import "crypto/subtle"

// KeyStore validates API keys on protected routes. Injected so deployments
// can swap the static config-file list for the business product's own key
// management without touching the middleware.
type KeyStore interface {
	// Validate reports whether the presented key is acceptable.
	Validate(key string) bool
}

// StaticKeyStore validates against a fixed key list loaded at startup.
type StaticKeyStore struct {
	keys    []string
	enabled bool
}

// NewStaticKeyStore creates a key store from the configured key list.
// When disabled, every request passes; intended for development only.
func NewStaticKeyStore(keys []string, enabled bool) *StaticKeyStore {
	return &StaticKeyStore{keys: keys, enabled: enabled}
}

// Validate reports whether the presented key matches a configured one.
// Comparison is constant time per key.
func (s *StaticKeyStore) Validate(key string) bool {
	if !s.enabled {
		return true
	}
	if key == "" {
		return false
	}
	valid := false
	for _, candidate := range s.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			valid = true
		}
	}
	return valid
}
