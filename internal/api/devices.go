package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/accessgrid/fleet-core/internal/adapter"
	"github.com/accessgrid/fleet-core/internal/device"
)

// deviceRequest is the create/update payload. Credentials arrive as
// plaintext over the (TLS-terminated) API, are sealed immediately and never
// appear in any response; Device's sealed blob is excluded from JSON.
type deviceRequest struct {
	device.Device
	Credentials *device.Credentials `json:"credentials,omitempty"`
}

// handleListDevices returns all devices, with optional query filters.
//
// Query parameters:
//   - organization_id: filter by organization
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if orgID := r.URL.Query().Get("organization_id"); orgID != "" {
		devices, err := s.registry.ListDevicesByOrganization(ctx, orgID)
		if err != nil {
			writeInternalError(w, "failed to list devices")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
		return
	}

	devices, err := s.registry.ListDevices(ctx)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	// New devices default to active; the body can opt out.
	req := deviceRequest{Device: device.Device{IsActive: true}}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.OrganizationID == "" {
		req.OrganizationID = s.orgID
	}

	if req.Credentials != nil {
		if !s.sealCredentials(w, &req.Device, req.Credentials) {
			return
		}
	}

	if err := s.registry.CreateDevice(r.Context(), &req.Device); err != nil {
		if isValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		if errors.Is(err, device.ErrDeviceExists) {
			writeConflict(w, "device already exists")
			return
		}
		writeInternalError(w, "failed to create device")
		return
	}

	writeJSON(w, http.StatusCreated, req.Device)
}

// handleUpdateDevice partially updates a device. Supplying credentials
// replaces the stored blob; omitting them keeps the current one.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	// Decode partial update onto the existing device
	req := deviceRequest{Device: *existing}
	if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.ID = id // Ensure ID cannot be changed

	if req.Credentials != nil {
		if !s.sealCredentials(w, &req.Device, req.Credentials) {
			return
		}
	}

	if err := s.registry.UpdateDevice(r.Context(), &req.Device); err != nil {
		if isValidationError(err) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to update device")
		return
	}

	writeJSON(w, http.StatusOK, req.Device)
}

// handleDeleteDevice removes a device by ID.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTestConnection probes the device and returns the resulting status.
func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	if _, err := s.registry.GetDevice(ctx, id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	connected := s.executor.TestConnection(ctx, id)

	status := device.StatusOffline
	if connected {
		status = device.StatusOnline
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connected": connected,
		"status":    status,
	})
}

// handleCommand executes a vendor-neutral command against a device.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var cmd adapter.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Name == "" {
		writeBadRequest(w, "name field is required")
		return
	}

	result, err := s.executor.ExecuteCommand(r.Context(), id, cmd)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeviceHealth probes the device and returns its health report.
func (s *Server) handleDeviceHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	health, err := s.executor.ProbeHealth(r.Context(), id)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, health)
}

// handleListEvents returns the most recent events received from a device.
//
// Query parameters:
//   - limit: maximum number of events (default 100)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.events.ListByDevice(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// sealCredentials seals plaintext credentials into the device's blob,
// writing an error response and returning false on failure.
func (s *Server) sealCredentials(w http.ResponseWriter, dev *device.Device, creds *device.Credentials) bool {
	if s.box == nil {
		writeInternalError(w, "credential store unavailable")
		return false
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		writeInternalError(w, "failed to encode credentials")
		return false
	}
	blob, err := s.box.Seal(plaintext)
	if err != nil {
		writeInternalError(w, "failed to seal credentials")
		return false
	}
	dev.CredentialsSealed = blob
	return true
}

// writeCommandError maps executor/adapter errors to HTTP responses.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceInactive):
		writeConflict(w, "device is inactive")
	case errors.Is(err, adapter.ErrUnknownCommand):
		writeBadRequest(w, err.Error())
	case errors.Is(err, adapter.ErrUnsupported):
		writeError(w, http.StatusBadRequest, ErrCodeUnsupported, err.Error())
	case errors.Is(err, adapter.ErrCredentialsUnavailable),
		errors.Is(err, adapter.ErrBadCredentials),
		errors.Is(err, adapter.ErrConnectionFailed),
		errors.Is(err, adapter.ErrCommandFailed):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	default:
		writeInternalError(w, "command execution failed")
	}
}

// isValidationError checks whether an error is a device validation error.
// ValidateDevice wraps various sentinel errors (ErrInvalidName, ErrInvalidHost,
// etc.) so we check all of them rather than just ErrInvalidDevice.
func isValidationError(err error) bool {
	return errors.Is(err, device.ErrInvalidDevice) ||
		errors.Is(err, device.ErrInvalidName) ||
		errors.Is(err, device.ErrInvalidHost) ||
		errors.Is(err, device.ErrInvalidPort) ||
		errors.Is(err, device.ErrInvalidProtocol) ||
		errors.Is(err, device.ErrInvalidDeviceType) ||
		errors.Is(err, device.ErrInvalidStatus)
}
