package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestID)
	r.Use(s.requestLog)
	r.Use(s.recoverPanics)
	r.Use(s.cors)
	r.Use(s.limitBody)

	// Device event ingestion. No auth: access terminals cannot hold API
	// keys, and anything but a 200 makes their firmware retry forever.
	r.Post("/webhook/device-events", s.handleIngestEvent)
	r.Post("/webhook/device-events/{deviceID}", s.handleIngestEvent)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Get("/discover", s.handleDiscoverDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)

					r.Post("/test-connection", s.handleTestConnection)
					r.Post("/command", s.handleCommand)
					r.Get("/health", s.handleDeviceHealth)
					r.Get("/events", s.handleListEvents)

					r.Post("/sync", s.handleSync)
					r.Post("/sync/retry", s.handleSyncRetry)
					r.Get("/sync", s.handleSyncStatus)

					r.Get("/webhooks", s.handleListWebhooks)
					r.Post("/webhooks", s.handleConfigureWebhook)
					r.Delete("/webhooks/{hostID}", s.handleRemoveWebhook)

					r.Post("/apply-template/{templateID}", s.handleApplyTemplate)
					r.Post("/auto-apply-template", s.handleAutoApplyTemplate)
				})
			})

			// Template endpoints
			r.Route("/templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleCreateTemplate)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTemplate)
					r.Patch("/", s.handleUpdateTemplate)
					r.Delete("/", s.handleDeleteTemplate)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
