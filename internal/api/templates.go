package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/accessgrid/fleet-core/internal/device"
)

// handleListTemplates returns an organization's templates.
//
// Query parameters:
//   - organization_id: defaults to the installation's organization
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		orgID = s.orgID
	}

	templates, err := s.templateRepo.ListByOrganization(r.Context(), orgID)
	if err != nil {
		writeInternalError(w, "failed to list templates")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"templates": templates, "count": len(templates)})
}

// handleCreateTemplate creates a configuration template.
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl device.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if tpl.OrganizationID == "" {
		tpl.OrganizationID = s.orgID
	}

	if err := s.templateRepo.Create(r.Context(), &tpl); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidTemplate):
			writeBadRequest(w, err.Error())
		case errors.Is(err, device.ErrTemplateExists):
			writeConflict(w, "template name already in use")
		default:
			writeInternalError(w, "failed to create template")
		}
		return
	}

	writeJSON(w, http.StatusCreated, tpl)
}

// handleGetTemplate returns a single template by ID.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tpl, err := s.templateRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrTemplateNotFound) {
			writeNotFound(w, "template not found")
			return
		}
		writeInternalError(w, "failed to get template")
		return
	}

	writeJSON(w, http.StatusOK, tpl)
}

// handleUpdateTemplate partially updates a template.
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := s.templateRepo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrTemplateNotFound) {
			writeNotFound(w, "template not found")
			return
		}
		writeInternalError(w, "failed to get template")
		return
	}

	if decodeErr := json.NewDecoder(r.Body).Decode(existing); decodeErr != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed

	if err := s.templateRepo.Update(r.Context(), existing); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidTemplate):
			writeBadRequest(w, err.Error())
		case errors.Is(err, device.ErrTemplateExists):
			writeConflict(w, "template name already in use")
		default:
			writeInternalError(w, "failed to update template")
		}
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteTemplate removes a template by ID.
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.templateRepo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrTemplateNotFound) {
			writeNotFound(w, "template not found")
			return
		}
		writeInternalError(w, "failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleApplyTemplate merges a template's defaults into a device's
// configuration and pushes the result to the device.
func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	templateID := chi.URLParam(r, "templateID")

	result, err := s.templates.Apply(r.Context(), templateID, deviceID)
	if err != nil {
		s.writeTemplateApplyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleAutoApplyTemplate selects the best matching template for a device
// and applies it. Zero matches is a recorded no-op, not an error.
func (s *Server) handleAutoApplyTemplate(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	result, err := s.templates.AutoApply(r.Context(), deviceID)
	if err != nil {
		s.writeTemplateApplyError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeTemplateApplyError maps template application errors to HTTP responses.
func (s *Server) writeTemplateApplyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrTemplateNotFound):
		writeNotFound(w, "template not found")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrDeviceInactive):
		writeConflict(w, "device is inactive")
	default:
		writeInternalError(w, "template application failed")
	}
}
