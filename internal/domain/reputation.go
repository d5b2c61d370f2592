package domain

import "time"

// ReputationMetric is the per-provider, per-day aggregate of delivery
// outcomes. Written by the reputation monitor, read by alerting and the
// admin API. One row per (provider, metric_date).
type ReputationMetric struct {
	Provider         string    `json:"provider" db:"provider"`
	MetricDate       time.Time `json:"metric_date" db:"metric_date"`
	TotalSent        int64     `json:"total_emails_sent" db:"total_sent"`
	TotalBounces     int64     `json:"total_bounces" db:"total_bounces"`
	TotalComplaints  int64     `json:"total_complaints" db:"total_complaints"`
	TotalDelivered   int64     `json:"total_delivered" db:"total_delivered"`
	BounceRate       float64   `json:"bounce_rate" db:"bounce_rate"`
	ComplaintRate    float64   `json:"complaint_rate" db:"complaint_rate"`
	DeliveryRate     float64   `json:"delivery_rate" db:"delivery_rate"`
	SendingQuotaUsed float64   `json:"sending_quota_used" db:"sending_quota_used"`
	SendingQuotaMax  float64   `json:"sending_quota_max" db:"sending_quota_max"`
	ReputationScore  float64   `json:"reputation_score" db:"reputation_score"`
	BounceRateAlert  bool      `json:"bounce_rate_alert" db:"bounce_rate_alert"`
	ComplaintAlert   bool      `json:"complaint_rate_alert" db:"complaint_rate_alert"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
