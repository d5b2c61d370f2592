package hooks

import (
	"context"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// Repository defines the data access contract for hooks and signals.
type Repository interface {
	// EnabledBySignalType returns every enabled hook registered for the
	// signal type.
	EnabledBySignalType(ctx context.Context, signalType string) ([]domain.NotificationHook, error)

	// Get returns one hook by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.NotificationHook, error)

	// Create inserts a hook.
	Create(ctx context.Context, h *domain.NotificationHook) error

	// Update replaces a hook's mutable fields. Returns ErrNotFound.
	Update(ctx context.Context, h *domain.NotificationHook) error

	// Delete removes a hook. Returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns all hooks, enabled or not.
	List(ctx context.Context) ([]domain.NotificationHook, error)
}

// SignalRepository persists signal events.
type SignalRepository interface {
	// Insert writes a new signal. When the signal carries an idempotency key
	// that already exists, ErrDuplicateSignal is returned and nothing is
	// written.
	Insert(ctx context.Context, s *domain.SignalEvent) error

	// MarkProcessed flips the processed flag after hook evaluation.
	MarkProcessed(ctx context.Context, id string) error

	// Unprocessed returns signals awaiting hook evaluation, oldest first.
	Unprocessed(ctx context.Context, limit int) ([]domain.SignalEvent, error)

	// Get returns one signal by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.SignalEvent, error)
}

// Enqueuer accepts matched notifications into the queue. Implemented by the
// queue service; declared here so the matcher does not import it.
type Enqueuer interface {
	Enqueue(ctx context.Context, n *domain.QueuedNotification) error
}
