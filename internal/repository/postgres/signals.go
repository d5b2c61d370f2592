package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/hooks"
)

// SignalRepo implements hooks.SignalRepository against PostgreSQL.
type SignalRepo struct{ db *sql.DB }

// NewSignalRepo creates a Postgres-backed signal repository.
func NewSignalRepo(db *sql.DB) *SignalRepo { return &SignalRepo{db: db} }

func (r *SignalRepo) Insert(ctx context.Context, s *domain.SignalEvent) error {
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO signal_events
			(id, signal_type, payload, source, idempotency_key, emitted_at, processed)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, false)
	`, s.ID, s.SignalType, payload, s.Source, s.IdempotencyKey, s.EmittedAt)
	if err != nil {
		// The partial unique index on idempotency_key turns replays into a
		// constraint violation.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return hooks.ErrDuplicateSignal
		}
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (r *SignalRepo) MarkProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE signal_events SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark signal processed: %w", err)
	}
	return nil
}

func (r *SignalRepo) Unprocessed(ctx context.Context, limit int) ([]domain.SignalEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, signal_type, payload, source, COALESCE(idempotency_key, ''), emitted_at, processed
		FROM signal_events
		WHERE processed = false
		ORDER BY emitted_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("unprocessed signals: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalEvent
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *SignalRepo) Get(ctx context.Context, id string) (*domain.SignalEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, signal_type, payload, source, COALESCE(idempotency_key, ''), emitted_at, processed
		FROM signal_events WHERE id = $1
	`, id)
	s, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, hooks.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return s, nil
}

func scanSignal(row rowScanner) (*domain.SignalEvent, error) {
	var s domain.SignalEvent
	var payload []byte
	if err := row.Scan(&s.ID, &s.SignalType, &payload, &s.Source,
		&s.IdempotencyKey, &s.EmittedAt, &s.Processed); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &s.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal signal payload: %w", err)
		}
	}
	return &s, nil
}
