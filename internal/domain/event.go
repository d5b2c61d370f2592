package domain

import "time"

// EventType classifies one row in the delivery event log.
type EventType string

const (
	EventQueued     EventType = "queued"
	EventSent       EventType = "sent"
	EventDelivered  EventType = "delivered"
	EventBounced    EventType = "bounced"
	EventComplained EventType = "complained"
	EventFailed     EventType = "failed"
)

// Well-known error codes recorded on failed events. Suppression denials use
// a dedicated code so they are distinguishable from provider errors.
const (
	ErrCodeSuppressed       = "suppressed"
	ErrCodeInvalidRecipient = "invalid_recipient"
	ErrCodeProviderError    = "provider_error"
	ErrCodeTimeout          = "timeout"
	ErrCodeRenderError      = "render_error"
)

// NotificationEvent is one append-only row in the delivery audit log: one
// row per delivery attempt per channel per recipient. Provider webhooks
// (delivered/bounced/complained) append further rows referencing the same
// notification and recipient; nothing is ever updated in place.
type NotificationEvent struct {
	ID             string    `json:"id" db:"id"`
	NotificationID string    `json:"notification_id" db:"notification_id"`
	Channel        Channel   `json:"channel" db:"channel"`
	Recipient      string    `json:"recipient" db:"recipient"`
	Provider       string    `json:"provider" db:"provider"`
	ProviderID     string    `json:"provider_id,omitempty" db:"provider_id"`
	ProviderStatus string    `json:"provider_status,omitempty" db:"provider_status"`
	EventType      EventType `json:"event_type" db:"event_type"`
	ErrorCode      string    `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage   string    `json:"error_message,omitempty" db:"error_message"`
	ProcessingMs   int64     `json:"processing_time_ms" db:"processing_time_ms"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	// TTL marks when the archiver may move this row to cold storage.
	TTL time.Time `json:"ttl,omitempty" db:"ttl"`
}
