package hooks

import "errors"

// Sentinel errors for the hook service layer.
var (
	ErrNotFound        = errors.New("hook not found")
	ErrDuplicateSignal = errors.New("duplicate signal idempotency key")
)
