package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/template"
)

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `id, channel, name, subject, content_text, content_html,
	variables, is_active, created_at, updated_at`

func (r *TemplateRepo) GetActive(ctx context.Context, id string, channel domain.Channel) (*domain.NotificationTemplate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM notification_templates
		WHERE id = $1 AND channel = $2 AND is_active = true
	`, id, string(channel))
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.NotificationTemplate, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM notification_templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.NotificationTemplate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_templates
			(id, channel, name, subject, content_text, content_html,
			 variables, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, string(t.Channel), t.Name, t.Subject, t.ContentText, t.ContentHTML,
		pq.Array(t.Variables), t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) Update(ctx context.Context, t *domain.NotificationTemplate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_templates SET
			channel = $2, name = $3, subject = $4, content_text = $5,
			content_html = $6, variables = $7, updated_at = $8
		WHERE id = $1
	`, t.ID, string(t.Channel), t.Name, t.Subject, t.ContentText,
		t.ContentHTML, pq.Array(t.Variables), t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (r *TemplateRepo) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_templates
		SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return template.ErrNotFound
	}
	return nil
}

func (r *TemplateRepo) List(ctx context.Context) ([]domain.NotificationTemplate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+templateColumns+` FROM notification_templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.NotificationTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTemplate(row rowScanner) (*domain.NotificationTemplate, error) {
	var t domain.NotificationTemplate
	var channel string
	if err := row.Scan(&t.ID, &channel, &t.Name, &t.Subject, &t.ContentText,
		&t.ContentHTML, pq.Array(&t.Variables), &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Channel = domain.Channel(channel)
	return &t, nil
}
