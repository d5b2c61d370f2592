package queue

import "errors"

// Sentinel errors for the queue service layer.
var (
	ErrNotFound = errors.New("queue item not found")
	// ErrStateConflict is returned when a transition is requested from a
	// status that does not allow it, such as marking a PENDING item sent.
	ErrStateConflict = errors.New("queue item not in expected status")
)
