package suppression

import (
	"context"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// Repository defines the data access contract for the suppression list.
type Repository interface {
	// IsSuppressed returns true if the address has an active suppression
	// entry on the given channel.
	IsSuppressed(ctx context.Context, address string, channel domain.Channel) (bool, error)

	// Suppress inserts an entry or reactivates an inactive one for the same
	// address and channel (idempotent).
	Suppress(ctx context.Context, e *domain.SuppressionEntry) error

	// Deactivate flips an entry to inactive, keeping the row for audit.
	// Returns ErrNotFound if no active entry exists.
	Deactivate(ctx context.Context, address string, channel domain.Channel) error

	// List returns entries matching the filter plus the unfiltered total.
	List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error)

	// Count returns the number of active entries.
	Count(ctx context.Context) (int, error)
}

// ListFilter controls pagination and filtering for suppression lists.
type ListFilter struct {
	Channel    domain.Channel
	Type       domain.SuppressionType
	Search     string
	ActiveOnly bool
	Limit      int
	Offset     int
}
