package webhook

import "errors"

var (
	// ErrWebhookNotFound indicates no active registration matches.
	ErrWebhookNotFound = errors.New("webhook: not found")

	// ErrWebhooksUnsupported indicates the device's vendor has no
	// push-event mechanism.
	ErrWebhooksUnsupported = errors.New("webhook: device does not support webhooks")

	// ErrInvalidRequest indicates a configure request missing required fields.
	ErrInvalidRequest = errors.New("webhook: invalid configure request")
)
