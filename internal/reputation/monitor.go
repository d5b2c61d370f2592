// Package reputation computes per-provider delivery health metrics.
//
// The monitor periodically aggregates the event log into one row per
// provider per UTC day (sends, bounces, complaints, rates) and compares the
// rates against alert thresholds. Email metrics also carry the SES account
// sending quota so operators see headroom next to reputation.
package reputation

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/doron007/realtechee-notify/internal/alerts"
	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// MetricsRepository persists daily reputation rows.
type MetricsRepository interface {
	// Upsert writes or replaces the row for (provider, metric_date).
	Upsert(ctx context.Context, m *domain.ReputationMetric) error

	// Recent returns up to days of rows for a provider, newest first.
	Recent(ctx context.Context, provider string, days int) ([]domain.ReputationMetric, error)
}

// EventCounter is the slice of the event log the monitor aggregates.
type EventCounter interface {
	CountByTypeSince(ctx context.Context, provider string, since time.Time) (map[domain.EventType]int64, error)
}

// QuotaAPI is the subset of the SES v2 client used for quota checks.
type QuotaAPI interface {
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// Thresholds hold the alerting trip points.
type Thresholds struct {
	BounceRate    float64
	ComplaintRate float64
	// QuotaUsage warns when the 24h send quota is this full (0 disables).
	QuotaUsage float64
}

// Monitor aggregates events into reputation metrics and raises alerts.
type Monitor struct {
	repo       MetricsRepository
	counter    EventCounter
	quota      QuotaAPI
	alerter    *alerts.Publisher
	providers  []string
	thresholds Thresholds
	now        func() time.Time
}

// NewMonitor wires the monitor. quota may be nil when the email channel is
// disabled; alerter may be nil for metric-only operation.
func NewMonitor(repo MetricsRepository, counter EventCounter, quota QuotaAPI, alerter *alerts.Publisher, providers []string, thresholds Thresholds) *Monitor {
	if thresholds.QuotaUsage == 0 {
		thresholds.QuotaUsage = 0.8
	}
	return &Monitor{
		repo:       repo,
		counter:    counter,
		quota:      quota,
		alerter:    alerter,
		providers:  providers,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the monitor on a ticker until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.RunOnce(ctx); err != nil {
			logger.Error("reputation sweep failed", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce aggregates today's metrics for every provider.
func (m *Monitor) RunOnce(ctx context.Context) error {
	day := m.today()
	for _, provider := range m.providers {
		if _, err := m.Collect(ctx, provider, day); err != nil {
			return fmt.Errorf("collect %s: %w", provider, err)
		}
	}
	return nil
}

// Collect aggregates one provider's metrics for the given UTC day, persists
// the row, and raises any threshold alerts.
func (m *Monitor) Collect(ctx context.Context, provider string, day time.Time) (*domain.ReputationMetric, error) {
	counts, err := m.counter.CountByTypeSince(ctx, provider, day)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	metric := &domain.ReputationMetric{
		Provider:        provider,
		MetricDate:      day,
		TotalSent:       counts[domain.EventSent],
		TotalBounces:    counts[domain.EventBounced],
		TotalComplaints: counts[domain.EventComplained],
		TotalDelivered:  counts[domain.EventDelivered],
		UpdatedAt:       m.now(),
	}

	if metric.TotalSent > 0 {
		sent := float64(metric.TotalSent)
		metric.BounceRate = float64(metric.TotalBounces) / sent
		metric.ComplaintRate = float64(metric.TotalComplaints) / sent
		metric.DeliveryRate = float64(metric.TotalDelivered) / sent
	}
	metric.ReputationScore = score(metric.BounceRate, metric.ComplaintRate)
	metric.BounceRateAlert = metric.TotalSent > 0 && metric.BounceRate >= m.thresholds.BounceRate
	metric.ComplaintAlert = metric.TotalSent > 0 && metric.ComplaintRate >= m.thresholds.ComplaintRate

	if provider == "ses" && m.quota != nil {
		m.attachQuota(ctx, metric)
	}

	if err := m.repo.Upsert(ctx, metric); err != nil {
		return nil, fmt.Errorf("store metric: %w", err)
	}

	m.raiseAlerts(ctx, metric)
	return metric, nil
}

// Recent returns the stored rows for the admin API.
func (m *Monitor) Recent(ctx context.Context, provider string, days int) ([]domain.ReputationMetric, error) {
	if days <= 0 {
		days = 30
	}
	return m.repo.Recent(ctx, provider, days)
}

func (m *Monitor) attachQuota(ctx context.Context, metric *domain.ReputationMetric) {
	out, err := m.quota.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		// Quota is informational; the aggregate row still stands.
		logger.Warn("fetching SES account quota failed", "error", err.Error())
		return
	}
	if out.SendQuota == nil {
		return
	}
	metric.SendingQuotaMax = out.SendQuota.Max24HourSend
	metric.SendingQuotaUsed = out.SendQuota.SentLast24Hours
}

func (m *Monitor) raiseAlerts(ctx context.Context, metric *domain.ReputationMetric) {
	if m.alerter == nil {
		return
	}

	if metric.BounceRateAlert {
		m.alerter.Publish(ctx, alerts.Alert{
			Severity: alerts.SeverityCritical,
			Kind:     alerts.KindBounceRate,
			Provider: metric.Provider,
			Message: fmt.Sprintf("bounce rate %.2f%% at or over threshold %.2f%%",
				metric.BounceRate*100, m.thresholds.BounceRate*100),
			Metrics: map[string]string{
				"bounce_rate": fmt.Sprintf("%.4f", metric.BounceRate),
				"total_sent":  fmt.Sprintf("%d", metric.TotalSent),
			},
		})
	}

	if metric.ComplaintAlert {
		m.alerter.Publish(ctx, alerts.Alert{
			Severity: alerts.SeverityCritical,
			Kind:     alerts.KindComplaintRate,
			Provider: metric.Provider,
			Message: fmt.Sprintf("complaint rate %.3f%% at or over threshold %.3f%%",
				metric.ComplaintRate*100, m.thresholds.ComplaintRate*100),
			Metrics: map[string]string{
				"complaint_rate": fmt.Sprintf("%.5f", metric.ComplaintRate),
				"total_sent":     fmt.Sprintf("%d", metric.TotalSent),
			},
		})
	}

	if metric.SendingQuotaMax > 0 {
		usage := metric.SendingQuotaUsed / metric.SendingQuotaMax
		if usage >= m.thresholds.QuotaUsage {
			m.alerter.Publish(ctx, alerts.Alert{
				Severity: alerts.SeverityWarning,
				Kind:     alerts.KindQuotaUsage,
				Provider: metric.Provider,
				Message:  fmt.Sprintf("24h sending quota %.0f%% used", usage*100),
				Metrics: map[string]string{
					"quota_used": fmt.Sprintf("%.0f", metric.SendingQuotaUsed),
					"quota_max":  fmt.Sprintf("%.0f", metric.SendingQuotaMax),
				},
			})
		}
	}
}

func (m *Monitor) today() time.Time {
	now := m.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// score folds bounce and complaint rates into a 0-100 health number.
// Complaints weigh an order of magnitude more than bounces.
func score(bounceRate, complaintRate float64) float64 {
	s := 100 - bounceRate*500 - complaintRate*5000
	if s < 0 {
		return 0
	}
	return s
}
