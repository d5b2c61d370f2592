package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/queue"
)

// QueueRepo implements queue.Repository against PostgreSQL.
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

const queueColumns = `id, signal_event_id, template_id, channels, recipients, payload,
	priority, status, retry_count, scheduled_at, claimed_at, sent_at, error_message, created_at`

func (r *QueueRepo) Insert(ctx context.Context, n *domain.QueuedNotification) error {
	channels, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}
	recipients, err := json.Marshal(n.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notification_queue
			(id, signal_event_id, template_id, channels, recipients, payload,
			 priority, status, retry_count, scheduled_at, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, 0, $9, $10)
	`, n.ID, n.SignalEventID, n.TemplateID, channels, recipients, payload,
		int(n.Priority), string(n.Status), n.ScheduledAt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (r *QueueRepo) ClaimBatch(ctx context.Context, limit int) ([]domain.QueuedNotification, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE notification_queue SET
			status = 'SENDING',
			claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_queue
			WHERE status = 'PENDING'
			  AND scheduled_at <= NOW()
			ORDER BY priority DESC, scheduled_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+queueColumns,
		limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()
	return scanQueueRows(rows)
}

func (r *QueueRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return r.transition(ctx, `
		UPDATE notification_queue
		SET status = 'SENT', sent_at = $2, error_message = NULL
		WHERE id = $1 AND status = 'SENDING'
	`, id, sentAt)
}

func (r *QueueRepo) MarkRetry(ctx context.Context, id string, nextAttempt time.Time, errMsg string) error {
	return r.transition(ctx, `
		UPDATE notification_queue
		SET status = 'RETRYING',
			retry_count = retry_count + 1,
			scheduled_at = $2,
			claimed_at = NULL,
			error_message = $3
		WHERE id = $1 AND status = 'SENDING'
	`, id, nextAttempt, errMsg)
}

func (r *QueueRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.transition(ctx, `
		UPDATE notification_queue
		SET status = 'FAILED', error_message = $2
		WHERE id = $1 AND status = 'SENDING'
	`, id, errMsg)
}

func (r *QueueRepo) MarkDeadLetter(ctx context.Context, id string, errMsg string) error {
	return r.transition(ctx, `
		UPDATE notification_queue
		SET status = 'DEAD_LETTER',
			retry_count = retry_count + 1,
			error_message = $2
		WHERE id = $1 AND status = 'SENDING'
	`, id, errMsg)
}

func (r *QueueRepo) transition(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("queue transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from a wrong-status row.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM notification_queue WHERE id = $1)`, args[0],
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return queue.ErrNotFound
		}
		return queue.ErrStateConflict
	}
	return nil
}

func (r *QueueRepo) ReleaseDue(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_queue
		SET status = 'PENDING'
		WHERE status = 'RETRYING' AND scheduled_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("release due retries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *QueueRepo) ReapStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_queue
		SET status = 'PENDING', claimed_at = NULL
		WHERE status = 'SENDING' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reap stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *QueueRepo) Get(ctx context.Context, id string) (*domain.QueuedNotification, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM notification_queue WHERE id = $1`, id)
	n, err := scanQueueRow(row)
	if err == sql.ErrNoRows {
		return nil, queue.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return n, nil
}

func (r *QueueRepo) List(ctx context.Context, f queue.ListFilter) ([]domain.QueuedNotification, int, error) {
	where := ""
	args := []interface{}{}
	if f.Status != "" {
		where = "WHERE status = $1"
		args = append(args, string(f.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_queue `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queue items: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM notification_queue %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, queueColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	out, err := scanQueueRows(rows)
	return out, total, err
}

func (r *QueueRepo) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM notification_queue GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.QueueStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.QueueStatus(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueRow(row rowScanner) (*domain.QueuedNotification, error) {
	var n domain.QueuedNotification
	var signalID, templateID, errMsg sql.NullString
	var claimedAt, sentAt sql.NullTime
	var channels, recipients, payload []byte
	var priority int
	var status string

	err := row.Scan(&n.ID, &signalID, &templateID, &channels, &recipients, &payload,
		&priority, &status, &n.RetryCount, &n.ScheduledAt, &claimedAt, &sentAt, &errMsg, &n.CreatedAt)
	if err != nil {
		return nil, err
	}

	n.SignalEventID = signalID.String
	n.TemplateID = templateID.String
	n.ErrorMessage = errMsg.String
	n.Priority = domain.Priority(priority)
	n.Status = domain.QueueStatus(status)
	if claimedAt.Valid {
		n.ClaimedAt = &claimedAt.Time
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if err := json.Unmarshal(channels, &n.Channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	if err := json.Unmarshal(recipients, &n.Recipients); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &n, nil
}

func scanQueueRows(rows *sql.Rows) ([]domain.QueuedNotification, error) {
	var out []domain.QueuedNotification
	for rows.Next() {
		n, err := scanQueueRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
