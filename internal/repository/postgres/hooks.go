package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/hooks"
)

// HookRepo implements hooks.Repository against PostgreSQL.
type HookRepo struct{ db *sql.DB }

// NewHookRepo creates a Postgres-backed hook repository.
func NewHookRepo(db *sql.DB) *HookRepo { return &HookRepo{db: db} }

const hookColumns = `id, name, signal_type, conditions, channels,
	recipient_emails, recipient_roles, recipient_dynamic,
	template_id, priority, enabled, created_at, updated_at`

func (r *HookRepo) EnabledBySignalType(ctx context.Context, signalType string) ([]domain.NotificationHook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+hookColumns+`
		FROM notification_hooks
		WHERE signal_type = $1 AND enabled = true
		ORDER BY created_at ASC
	`, signalType)
	if err != nil {
		return nil, fmt.Errorf("hooks by signal type: %w", err)
	}
	defer rows.Close()
	return scanHooks(rows)
}

func (r *HookRepo) Get(ctx context.Context, id string) (*domain.NotificationHook, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+hookColumns+` FROM notification_hooks WHERE id = $1`, id)
	h, err := scanHook(row)
	if err == sql.ErrNoRows {
		return nil, hooks.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hook: %w", err)
	}
	return h, nil
}

func (r *HookRepo) Create(ctx context.Context, h *domain.NotificationHook) error {
	conditions, err := json.Marshal(h.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	channels, err := json.Marshal(h.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notification_hooks
			(id, name, signal_type, conditions, channels,
			 recipient_emails, recipient_roles, recipient_dynamic,
			 template_id, priority, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10, $11, $12, $13)
	`, h.ID, h.Name, h.SignalType, conditions, channels,
		pq.Array(h.RecipientEmails), pq.Array(h.RecipientRoles), h.RecipientDynamic,
		h.TemplateID, int(h.Priority), h.Enabled, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert hook: %w", err)
	}
	return nil
}

func (r *HookRepo) Update(ctx context.Context, h *domain.NotificationHook) error {
	conditions, err := json.Marshal(h.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	channels, err := json.Marshal(h.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_hooks SET
			name = $2, signal_type = $3, conditions = $4, channels = $5,
			recipient_emails = $6, recipient_roles = $7, recipient_dynamic = $8,
			template_id = NULLIF($9, ''), priority = $10, enabled = $11, updated_at = NOW()
		WHERE id = $1
	`, h.ID, h.Name, h.SignalType, conditions, channels,
		pq.Array(h.RecipientEmails), pq.Array(h.RecipientRoles), h.RecipientDynamic,
		h.TemplateID, int(h.Priority), h.Enabled)
	if err != nil {
		return fmt.Errorf("update hook: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return hooks.ErrNotFound
	}
	return nil
}

func (r *HookRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_hooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete hook: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return hooks.ErrNotFound
	}
	return nil
}

func (r *HookRepo) List(ctx context.Context) ([]domain.NotificationHook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+hookColumns+` FROM notification_hooks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list hooks: %w", err)
	}
	defer rows.Close()
	return scanHooks(rows)
}

func scanHook(row rowScanner) (*domain.NotificationHook, error) {
	var h domain.NotificationHook
	var conditions, channels []byte
	var templateID sql.NullString
	var priority int

	err := row.Scan(&h.ID, &h.Name, &h.SignalType, &conditions, &channels,
		pq.Array(&h.RecipientEmails), pq.Array(&h.RecipientRoles), &h.RecipientDynamic,
		&templateID, &priority, &h.Enabled, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}

	h.TemplateID = templateID.String
	h.Priority = domain.Priority(priority)
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &h.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal conditions: %w", err)
		}
	}
	if err := json.Unmarshal(channels, &h.Channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	return &h, nil
}

func scanHooks(rows *sql.Rows) ([]domain.NotificationHook, error) {
	var out []domain.NotificationHook
	for rows.Next() {
		h, err := scanHook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}
