package domain

import "time"

// QueueStatus is the lifecycle state of a queued notification.
//
//	PENDING -> SENDING -> SENT                       (terminal)
//	                   -> RETRYING -> PENDING -> ... (backoff elapsed)
//	                   -> FAILED                     (terminal, permanent)
//	                   -> DEAD_LETTER                (terminal, retries exhausted)
type QueueStatus string

const (
	StatusPending    QueueStatus = "PENDING"
	StatusSending    QueueStatus = "SENDING"
	StatusSent       QueueStatus = "SENT"
	StatusRetrying   QueueStatus = "RETRYING"
	StatusFailed     QueueStatus = "FAILED"
	StatusDeadLetter QueueStatus = "DEAD_LETTER"
)

// Terminal reports whether no further transition is allowed from s.
func (s QueueStatus) Terminal() bool {
	switch s {
	case StatusSent, StatusFailed, StatusDeadLetter:
		return true
	}
	return false
}

// QueuedNotification is one unit of outbound work. Created by the hook
// matcher or the direct-enqueue API; mutated only by the scheduler and the
// delivery dispatcher, never by two workers at once (the claim operation
// guarantees single ownership).
type QueuedNotification struct {
	ID string `json:"id" db:"id"`
	// SignalEventID links back to the originating signal. Empty for items
	// enqueued directly without a signal.
	SignalEventID string    `json:"signal_event_id,omitempty" db:"signal_event_id"`
	TemplateID    string    `json:"template_id,omitempty" db:"template_id"`
	Channels      []Channel `json:"channels" db:"channels"`
	Recipients    []string  `json:"recipients" db:"recipients"`
	// Payload carries the merged template variables. A "directContent" key
	// bypasses the renderer entirely (subject/body used verbatim).
	Payload      Payload     `json:"payload" db:"payload"`
	Priority     Priority    `json:"priority" db:"priority"`
	Status       QueueStatus `json:"status" db:"status"`
	RetryCount   int         `json:"retry_count" db:"retry_count"`
	ScheduledAt  time.Time   `json:"scheduled_at" db:"scheduled_at"`
	ClaimedAt    *time.Time  `json:"claimed_at,omitempty" db:"claimed_at"`
	SentAt       *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
	ErrorMessage string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// DirectContent is the renderer bypass payload: content supplied verbatim by
// the enqueuer instead of a template reference.
type DirectContent struct {
	Subject  string `json:"subject"`
	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html,omitempty"`
}

// DirectContentKey is the payload key holding a DirectContent object.
const DirectContentKey = "directContent"

// DirectContentFromPayload extracts the renderer-bypass content from a
// payload bag, if present. Payloads arrive from JSON, so the value is a
// generic map.
func DirectContentFromPayload(p Payload) (*DirectContent, bool) {
	raw, ok := p[DirectContentKey]
	if !ok {
		return nil, false
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, false
	}
	dc := &DirectContent{}
	if s, ok := m["subject"].(string); ok {
		dc.Subject = s
	}
	if s, ok := m["body_text"].(string); ok {
		dc.BodyText = s
	}
	if s, ok := m["body_html"].(string); ok {
		dc.BodyHTML = s
	}
	return dc, true
}
