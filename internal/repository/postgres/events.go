package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/events"
)

// EventRepo implements events.Repository against PostgreSQL. Append-only:
// the only delete is the archiver's prune of exported rows.
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = `id, notification_id, channel, recipient, provider,
	COALESCE(provider_id, ''), COALESCE(provider_status, ''), event_type,
	COALESCE(error_code, ''), COALESCE(error_message, ''), processing_time_ms, timestamp, ttl`

func (r *EventRepo) Append(ctx context.Context, e *domain.NotificationEvent) error {
	var ttl interface{}
	if !e.TTL.IsZero() {
		ttl = e.TTL
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_events
			(id, notification_id, channel, recipient, provider, provider_id,
			 provider_status, event_type, error_code, error_message,
			 processing_time_ms, timestamp, ttl)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8,
			NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13)
	`, e.ID, e.NotificationID, string(e.Channel), e.Recipient, e.Provider,
		e.ProviderID, e.ProviderStatus, string(e.EventType),
		e.ErrorCode, e.ErrorMessage, e.ProcessingMs, e.Timestamp, ttl)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *EventRepo) ByNotification(ctx context.Context, notificationID string) ([]domain.NotificationEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM notification_events
		WHERE notification_id = $1
		ORDER BY timestamp ASC
	`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("events by notification: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *EventRepo) HasSent(ctx context.Context, notificationID string, channel domain.Channel, recipient string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM notification_events
			WHERE notification_id = $1 AND channel = $2 AND recipient = $3
			  AND event_type = 'sent'
		)`, notificationID, string(channel), recipient,
	).Scan(&exists)
	return exists, err
}

func (r *EventRepo) CountByTypeSince(ctx context.Context, provider string, since time.Time) (map[domain.EventType]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM notification_events
		WHERE provider = $1 AND timestamp >= $2
		GROUP BY event_type
	`, provider, since)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventType]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[domain.EventType(typ)] = n
	}
	return counts, rows.Err()
}

func (r *EventRepo) List(ctx context.Context, f events.ListFilter) ([]domain.NotificationEvent, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if f.NotificationID != "" {
		args = append(args, f.NotificationID)
		where += fmt.Sprintf(" AND notification_id = $%d", len(args))
	}
	if f.EventType != "" {
		args = append(args, string(f.EventType))
		where += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if f.Recipient != "" {
		args = append(args, f.Recipient)
		where += fmt.Sprintf(" AND recipient = $%d", len(args))
	}
	if f.ProviderID != "" {
		args = append(args, f.ProviderID)
		where += fmt.Sprintf(" AND provider_id = $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_events `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM notification_events %s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d
	`, eventColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out, err := scanEvents(rows)
	return out, total, err
}

func (r *EventRepo) Expired(ctx context.Context, before time.Time, limit int) ([]domain.NotificationEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM notification_events
		WHERE ttl IS NOT NULL AND ttl < $1
		ORDER BY timestamp ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("expired events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *EventRepo) DeleteExpired(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_events WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("delete expired events: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]domain.NotificationEvent, error) {
	var out []domain.NotificationEvent
	for rows.Next() {
		var e domain.NotificationEvent
		var channel, typ string
		var ttl sql.NullTime
		if err := rows.Scan(&e.ID, &e.NotificationID, &channel, &e.Recipient, &e.Provider,
			&e.ProviderID, &e.ProviderStatus, &typ, &e.ErrorCode, &e.ErrorMessage,
			&e.ProcessingMs, &e.Timestamp, &ttl); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Channel = domain.Channel(channel)
		e.EventType = domain.EventType(typ)
		if ttl.Valid {
			e.TTL = ttl.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
