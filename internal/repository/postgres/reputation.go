package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// ReputationRepo implements reputation.MetricsRepository against PostgreSQL.
type ReputationRepo struct{ db *sql.DB }

// NewReputationRepo creates a Postgres-backed reputation repository.
func NewReputationRepo(db *sql.DB) *ReputationRepo { return &ReputationRepo{db: db} }

func (r *ReputationRepo) Upsert(ctx context.Context, m *domain.ReputationMetric) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reputation_metrics
			(provider, metric_date, total_sent, total_bounces, total_complaints,
			 total_delivered, bounce_rate, complaint_rate, delivery_rate,
			 sending_quota_used, sending_quota_max, reputation_score,
			 bounce_rate_alert, complaint_rate_alert, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (provider, metric_date) DO UPDATE SET
			total_sent = $3, total_bounces = $4, total_complaints = $5,
			total_delivered = $6, bounce_rate = $7, complaint_rate = $8,
			delivery_rate = $9, sending_quota_used = $10, sending_quota_max = $11,
			reputation_score = $12, bounce_rate_alert = $13,
			complaint_rate_alert = $14, updated_at = $15
	`, m.Provider, m.MetricDate, m.TotalSent, m.TotalBounces, m.TotalComplaints,
		m.TotalDelivered, m.BounceRate, m.ComplaintRate, m.DeliveryRate,
		m.SendingQuotaUsed, m.SendingQuotaMax, m.ReputationScore,
		m.BounceRateAlert, m.ComplaintAlert, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert reputation metric: %w", err)
	}
	return nil
}

func (r *ReputationRepo) Recent(ctx context.Context, provider string, days int) ([]domain.ReputationMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT provider, metric_date, total_sent, total_bounces, total_complaints,
			total_delivered, bounce_rate, complaint_rate, delivery_rate,
			sending_quota_used, sending_quota_max, reputation_score,
			bounce_rate_alert, complaint_rate_alert, updated_at
		FROM reputation_metrics
		WHERE provider = $1
		ORDER BY metric_date DESC
		LIMIT $2
	`, provider, days)
	if err != nil {
		return nil, fmt.Errorf("recent reputation metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.ReputationMetric
	for rows.Next() {
		var m domain.ReputationMetric
		if err := rows.Scan(&m.Provider, &m.MetricDate, &m.TotalSent, &m.TotalBounces,
			&m.TotalComplaints, &m.TotalDelivered, &m.BounceRate, &m.ComplaintRate,
			&m.DeliveryRate, &m.SendingQuotaUsed, &m.SendingQuotaMax, &m.ReputationScore,
			&m.BounceRateAlert, &m.ComplaintAlert, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reputation metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
