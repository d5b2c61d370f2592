package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/suppression"
)

// SuppressionRepo implements suppression.Repository against PostgreSQL.
type SuppressionRepo struct{ db *sql.DB }

// NewSuppressionRepo creates a Postgres-backed suppression repository.
func NewSuppressionRepo(db *sql.DB) *SuppressionRepo { return &SuppressionRepo{db: db} }

func (r *SuppressionRepo) IsSuppressed(ctx context.Context, address string, channel domain.Channel) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM suppression_list
			WHERE address = $1 AND channel = $2 AND is_active = true
		)`, address, string(channel),
	).Scan(&exists)
	return exists, err
}

func (r *SuppressionRepo) Suppress(ctx context.Context, s *domain.SuppressionEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO suppression_list
			(id, address, channel, suppression_type, bounce_type, bounce_sub_type,
			 complaint_type, is_active, source, suppressed_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), true, $8, $9)
		ON CONFLICT (address, channel) WHERE is_active DO NOTHING
	`, s.ID, s.Address, string(s.Channel), string(s.Type), s.BounceType, s.BounceSubType,
		s.ComplaintType, string(s.Source), s.SuppressedAt)
	if err != nil {
		return fmt.Errorf("suppress: %w", err)
	}
	return nil
}

func (r *SuppressionRepo) Deactivate(ctx context.Context, address string, channel domain.Channel) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE suppression_list
		SET is_active = false, deactivated_at = NOW()
		WHERE address = $1 AND channel = $2 AND is_active = true
	`, address, string(channel))
	if err != nil {
		return fmt.Errorf("deactivate suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (r *SuppressionRepo) List(ctx context.Context, f suppression.ListFilter) ([]domain.SuppressionEntry, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if f.ActiveOnly {
		where += " AND is_active = true"
	}
	if f.Channel != "" {
		args = append(args, string(f.Channel))
		where += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where += fmt.Sprintf(" AND suppression_type = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		where += fmt.Sprintf(" AND address LIKE $%d", len(args))
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_list `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count suppressions: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = total
	}
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, address, channel, suppression_type,
			COALESCE(bounce_type, ''), COALESCE(bounce_sub_type, ''), COALESCE(complaint_type, ''),
			is_active, source, suppressed_at, deactivated_at
		FROM suppression_list %s
		ORDER BY suppressed_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionEntry
	for rows.Next() {
		var e domain.SuppressionEntry
		var channel, typ, source string
		var deactivated sql.NullTime
		if err := rows.Scan(&e.ID, &e.Address, &channel, &typ,
			&e.BounceType, &e.BounceSubType, &e.ComplaintType,
			&e.IsActive, &source, &e.SuppressedAt, &deactivated); err != nil {
			return nil, 0, fmt.Errorf("scan suppression: %w", err)
		}
		e.Channel = domain.Channel(channel)
		e.Type = domain.SuppressionType(typ)
		e.Source = domain.SuppressionSource(source)
		if deactivated.Valid {
			e.DeactivatedAt = &deactivated.Time
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *SuppressionRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_list WHERE is_active = true`,
	).Scan(&n)
	return n, err
}
