package domain

import "time"

// SuppressionType enumerates why an address was suppressed.
type SuppressionType string

const (
	SuppressionBounce    SuppressionType = "bounce"
	SuppressionComplaint SuppressionType = "complaint"
	SuppressionManual    SuppressionType = "manual"
)

// SuppressionSource indicates where the suppression signal originated.
type SuppressionSource string

const (
	SuppressionSourceWebhook  SuppressionSource = "provider_webhook"
	SuppressionSourceOperator SuppressionSource = "operator"
	SuppressionSourceImport   SuppressionSource = "import"
)

// SuppressionEntry is a standing policy denial: while IsActive, the address
// must never be sent to on the matching channel. Entries flow in from
// provider bounce/complaint feedback or manual operator action, and are
// checked on the hot path of every delivery attempt, never only at enqueue
// time; status can change between enqueue and send.
type SuppressionEntry struct {
	ID             string            `json:"id" db:"id"`
	Address        string            `json:"address" db:"address"`
	Channel        Channel           `json:"channel" db:"channel"`
	Type           SuppressionType   `json:"suppression_type" db:"suppression_type"`
	BounceType     string            `json:"bounce_type,omitempty" db:"bounce_type"`
	BounceSubType  string            `json:"bounce_sub_type,omitempty" db:"bounce_sub_type"`
	ComplaintType  string            `json:"complaint_type,omitempty" db:"complaint_type"`
	IsActive       bool              `json:"is_active" db:"is_active"`
	Source         SuppressionSource `json:"source" db:"source"`
	SuppressedAt   time.Time         `json:"suppressed_at" db:"suppressed_at"`
	DeactivatedAt  *time.Time        `json:"deactivated_at,omitempty" db:"deactivated_at"`
}
