package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/directory"
	"github.com/accessgrid/fleet-core/internal/reconcile"
)

// syncRequest selects who to push to a device and how.
type syncRequest struct {
	Scope         directory.Scope `json:"scope"`
	ForceSync     bool            `json:"forceSync"`
	RemoveMissing bool            `json:"removeMissing"`
}

// handleSync reconciles a device's user list against the directory.
//
// The scope selects employees by explicit IDs, department, branch or
// organization. An empty scope defaults to the installation's organization.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Scope.IsEmpty() && s.orgID != "" {
		req.Scope.OrganizationID = s.orgID
	}

	summary, err := s.engine.SyncEmployees(r.Context(), id, req.Scope, reconcile.Options{
		ForceSync:     req.ForceSync,
		RemoveMissing: req.RemoveMissing,
	})
	if err != nil {
		s.writeSyncError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleSyncRetry replays a device's failed ledger entries.
func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	summary, err := s.engine.RetryFailedSyncs(r.Context(), id)
	if err != nil {
		if errors.Is(err, reconcile.ErrNothingToRetry) {
			writeNotFound(w, "no failed syncs to retry")
			return
		}
		s.writeSyncError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleSyncStatus returns the device's sync ledger.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := s.engine.GetSyncStatus(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to read sync status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// writeSyncError maps reconciliation errors to HTTP responses.
func (s *Server) writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrEmptyScope),
		errors.Is(err, directory.ErrInvalidCredentialType):
		writeBadRequest(w, err.Error())
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceInactive):
		writeConflict(w, "device is inactive")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, ErrCodeInternal, "sync interrupted")
	default:
		writeInternalError(w, "sync failed")
	}
}
