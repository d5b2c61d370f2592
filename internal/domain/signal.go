package domain

import "time"

// Payload is the opaque key/value bag carried by a signal. Values come from
// JSON so nested objects are map[string]interface{} and numbers are float64.
type Payload map[string]interface{}

// SignalEvent is an immutable record of a business fact ("request created",
// "quote sent") emitted by an external collaborator. It is written once,
// read by the hook matcher, and flipped to Processed after every matching
// hook has been evaluated. Signals are never deleted in place; the archiver
// time-boxes them to S3 for storage cost.
type SignalEvent struct {
	ID             string    `json:"id" db:"id"`
	SignalType     string    `json:"signal_type" db:"signal_type"`
	Payload        Payload   `json:"payload" db:"payload"`
	Source         string    `json:"source" db:"source"`
	IdempotencyKey string    `json:"idempotency_key,omitempty" db:"idempotency_key"`
	EmittedAt      time.Time `json:"emitted_at" db:"emitted_at"`
	Processed      bool      `json:"processed" db:"processed"`
}

// StringField returns the payload value at a dotted field path as a string.
// Returns "" and false if the path is absent or the value is not scalar.
func (p Payload) StringField(path string) (string, bool) {
	v, ok := p.Field(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Field resolves a dotted path ("agent.email") against the payload.
func (p Payload) Field(path string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(p)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		part := path[start:i]
		start = i + 1
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
