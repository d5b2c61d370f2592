package domain

import "time"

// ConditionOp is the comparison applied by a single hook condition.
type ConditionOp string

const (
	// OpEquals matches when the payload field equals the condition value
	// (string comparison after normalization).
	OpEquals ConditionOp = "eq"
	// OpExists matches when the payload field is present and non-empty.
	OpExists ConditionOp = "exists"
)

// HookCondition is one predicate over a payload field. A hook's conditions
// are a conjunction: all must match.
type HookCondition struct {
	Field string      `json:"field"`
	Op    ConditionOp `json:"op"`
	Value string      `json:"value,omitempty"`
}

// NotificationHook maps a signal type plus payload conditions to recipients,
// channels, and a template. Hooks are configuration data: administrators
// create and edit them, the pipeline only reads them.
type NotificationHook struct {
	ID         string          `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	SignalType string          `json:"signal_type" db:"signal_type"`
	Conditions []HookCondition `json:"conditions" db:"conditions"`
	Channels   []Channel       `json:"channels" db:"channels"`

	// RecipientEmails are static addresses.
	RecipientEmails []string `json:"recipient_emails" db:"recipient_emails"`
	// RecipientRoles are looked up through the directory collaborator
	// ("account_manager" -> addresses) at match time.
	RecipientRoles []string `json:"recipient_roles" db:"recipient_roles"`
	// RecipientDynamic names payload fields holding addresses, comma
	// separated ("agentEmail,ownerEmail"). Resolved at match time.
	RecipientDynamic string `json:"recipient_dynamic" db:"recipient_dynamic"`

	TemplateID string    `json:"template_id" db:"template_id"`
	Priority   Priority  `json:"priority" db:"priority"`
	Enabled    bool      `json:"enabled" db:"enabled"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
