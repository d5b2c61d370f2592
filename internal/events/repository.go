package events

import (
	"context"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// Repository defines the append-only data access contract for the event log.
// There is deliberately no update or delete.
type Repository interface {
	// Append writes one event row.
	Append(ctx context.Context, e *domain.NotificationEvent) error

	// ByNotification returns all events for a notification, oldest first.
	ByNotification(ctx context.Context, notificationID string) ([]domain.NotificationEvent, error)

	// HasSent reports whether a sent event exists for the triple.
	HasSent(ctx context.Context, notificationID string, channel domain.Channel, recipient string) (bool, error)

	// CountByTypeSince returns event counts per type for a provider since
	// the given time. Feeds the reputation monitor.
	CountByTypeSince(ctx context.Context, provider string, since time.Time) (map[domain.EventType]int64, error)

	// List returns events matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]domain.NotificationEvent, int, error)

	// Expired returns events whose TTL passed, oldest first. Used by the
	// archiver.
	Expired(ctx context.Context, before time.Time, limit int) ([]domain.NotificationEvent, error)

	// DeleteExpired removes archived rows by id. Only the archiver calls
	// this, after the rows are safely in cold storage.
	DeleteExpired(ctx context.Context, ids []string) error
}

// ListFilter controls pagination and filtering for event listings.
type ListFilter struct {
	NotificationID string
	EventType      domain.EventType
	Recipient      string
	ProviderID     string
	Limit          int
	Offset         int
}
