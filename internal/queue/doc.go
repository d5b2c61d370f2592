// Package queue implements the notification queue and dispatch scheduler.
//
// Queue items move PENDING -> SENDING -> SENT, RETRYING, FAILED, or
// DEAD_LETTER. The claim operation is the concurrency boundary: a batch of
// due PENDING items is atomically flipped to SENDING under row locks, so two
// overlapping sweeps can never hand the same item to two workers. Crash
// safety comes from the stale-claim reaper, which returns items stuck in
// SENDING past the claim timeout to PENDING.
//
// Retry delays grow exponentially (base * 2^retryCount, capped) and items
// that exhaust their retries land in DEAD_LETTER for operator review.
package queue
