package domain

import "time"

// NotificationTemplate holds the channel-specific content for one message
// shape. Templates are immutable per version: a template in active use is
// deactivated, never deleted.
type NotificationTemplate struct {
	ID          string    `json:"id" db:"id"`
	Channel     Channel   `json:"channel" db:"channel"`
	Name        string    `json:"name" db:"name"`
	Subject     string    `json:"subject" db:"subject"`
	ContentText string    `json:"content_text" db:"content_text"`
	ContentHTML string    `json:"content_html" db:"content_html"`
	// Variables declares every placeholder the template requires. Rendering
	// fails loudly if any declared variable is absent from the bag.
	Variables []string  `json:"variables" db:"variables"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RenderedContent is the channel-ready output of the template renderer.
type RenderedContent struct {
	Subject   string `json:"subject"`
	BodyText  string `json:"body_text"`
	BodyHTML  string `json:"body_html,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}
