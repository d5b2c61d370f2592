package queue

import (
	"context"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// Repository defines the data access contract for the notification queue.
// ClaimBatch and the transition methods carry the status preconditions into
// SQL so concurrent workers cannot race past them.
type Repository interface {
	// Insert writes a new PENDING item.
	Insert(ctx context.Context, n *domain.QueuedNotification) error

	// ClaimBatch atomically flips up to limit due PENDING items to SENDING
	// and returns them, highest priority first then oldest scheduled_at.
	// An item is due when scheduled_at <= now. Items already SENDING are
	// invisible to this call regardless of who claimed them.
	ClaimBatch(ctx context.Context, limit int) ([]domain.QueuedNotification, error)

	// MarkSent transitions SENDING -> SENT. Returns ErrStateConflict when
	// the item is not SENDING.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkRetry transitions SENDING -> RETRYING with the next attempt time
	// and increments retry_count. The scheduler later returns RETRYING
	// items whose delay elapsed to PENDING.
	MarkRetry(ctx context.Context, id string, nextAttempt time.Time, errMsg string) error

	// MarkFailed transitions SENDING -> FAILED (permanent error).
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// MarkDeadLetter transitions SENDING -> DEAD_LETTER (retries exhausted).
	MarkDeadLetter(ctx context.Context, id string, errMsg string) error

	// ReleaseDue returns RETRYING items whose backoff elapsed to PENDING.
	// Returns the number of items released.
	ReleaseDue(ctx context.Context, now time.Time) (int, error)

	// ReapStale returns items stuck in SENDING longer than cutoff to
	// PENDING without incrementing retry_count. Returns the number reaped.
	ReapStale(ctx context.Context, cutoff time.Time) (int, error)

	// Get returns one item by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.QueuedNotification, error)

	// List returns items matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.QueuedNotification, int, error)

	// CountByStatus returns item counts grouped by status.
	CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error)
}

// ListFilter controls pagination and filtering for queue listings.
type ListFilter struct {
	Status domain.QueueStatus
	Limit  int
	Offset int
}
