package api

import (
	"net/http"
)

// handleDiscoverDevices scans the local network for known device families.
//
// Discovery is best effort: adapters that cannot scan simply contribute
// nothing, and the scan is bounded by the request context. None of the
// bundled vendor adapters implements network scanning (the vendors' UDP and
// multicast discovery protocols are not spoken here), so the endpoint
// returns an empty list until an adapter that can scan is registered.
func (s *Server) handleDiscoverDevices(w http.ResponseWriter, r *http.Request) {
	found := s.executor.Discover(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": found,
		"count":   len(found),
	})
}
