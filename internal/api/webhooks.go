package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/accessgrid/fleet-core/internal/device"
	"github.com/accessgrid/fleet-core/internal/webhook"
)

// handleListWebhooks returns a device's webhook registrations.
func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	webhooks, err := s.webhooks.List(r.Context(), id)
	if err != nil {
		writeInternalError(w, "failed to list webhooks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"webhooks": webhooks, "count": len(webhooks)})
}

// handleConfigureWebhook pushes an event host registration to a device and
// records it.
func (s *Server) handleConfigureWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req webhook.ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	wh, err := s.webhooks.Configure(r.Context(), id, req)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidRequest):
			writeBadRequest(w, err.Error())
		case errors.Is(err, webhook.ErrWebhooksUnsupported):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, err.Error())
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrDeviceInactive):
			writeConflict(w, "device is inactive")
		default:
			writeError(w, http.StatusBadGateway, ErrCodeDeviceError, "device rejected webhook configuration")
		}
		return
	}

	writeJSON(w, http.StatusCreated, wh)
}

// handleRemoveWebhook deactivates a registration. The device-side cleanup is
// best effort; an unreachable device does not block removal.
func (s *Server) handleRemoveWebhook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	hostID := chi.URLParam(r, "hostID")

	if err := s.webhooks.Remove(r.Context(), id, hostID); err != nil {
		if errors.Is(err, webhook.ErrWebhookNotFound) {
			writeNotFound(w, "webhook not found")
			return
		}
		writeInternalError(w, "failed to remove webhook")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleIngestEvent receives event deliveries from devices.
//
// This endpoint always answers 200: access terminals retry forever on any
// other status and some firmware wedges outright. Malformed bodies are
// acknowledged and dropped.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	in := webhook.IncomingEvent{
		DeviceIDHint: chi.URLParam(r, "deviceID"),
		SourceIP:     remoteIP(r),
		Headers:      r.Header,
	}

	if err := json.NewDecoder(r.Body).Decode(&in.Payload); err != nil {
		s.logger.Warn("webhook delivery with unparseable body",
			"source_ip", in.SourceIP, "error", err)
		writeJSON(w, http.StatusOK, &webhook.Ack{
			Status:    "ok",
			Message:   "unparseable payload discarded",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	ack := s.processor.Ingest(r.Context(), in)
	writeJSON(w, http.StatusOK, ack)
}

// remoteIP strips the port from the request's remote address.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
