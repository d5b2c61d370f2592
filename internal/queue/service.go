package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// Options tunes retry and reaping behavior.
type Options struct {
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	ClaimTimeout time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries:   5,
		BackoffBase:  60 * time.Second,
		BackoffCap:   time.Hour,
		ClaimTimeout: 10 * time.Minute,
	}
}

// Service owns queue item lifecycle transitions.
type Service struct {
	repo Repository
	opts Options
	now  func() time.Time
}

// NewService creates a queue service. Zero-valued option fields fall back to
// defaults.
func NewService(repo Repository, opts Options) *Service {
	def := DefaultOptions()
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = def.BackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = def.BackoffCap
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = def.ClaimTimeout
	}
	return &Service{repo: repo, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue validates and inserts a new PENDING item. Either a template id or
// direct content in the payload is required, along with at least one valid
// channel and one recipient.
func (s *Service) Enqueue(ctx context.Context, n *domain.QueuedNotification) error {
	if len(n.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	if len(n.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, ch := range n.Channels {
		if !ch.Valid() {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	if n.TemplateID == "" {
		if _, ok := domain.DirectContentFromPayload(n.Payload); !ok {
			return fmt.Errorf("template id or direct content is required")
		}
	}

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.Status = domain.StatusPending
	n.RetryCount = 0
	if n.ScheduledAt.IsZero() {
		n.ScheduledAt = s.now()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	if err := s.repo.Insert(ctx, n); err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	logger.Info("notification enqueued",
		"notification_id", n.ID,
		"priority", n.Priority.String(),
		"recipients", len(n.Recipients))
	return nil
}

// Claim atomically takes ownership of up to limit due items. Items are
// returned in dispatch order: priority descending, then scheduled_at
// ascending.
func (s *Service) Claim(ctx context.Context, limit int) ([]domain.QueuedNotification, error) {
	return s.repo.ClaimBatch(ctx, limit)
}

// Backoff returns the delay before the given attempt: base * 2^retryCount,
// capped.
func (s *Service) Backoff(retryCount int) time.Duration {
	d := s.opts.BackoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= s.opts.BackoffCap {
			return s.opts.BackoffCap
		}
	}
	if d > s.opts.BackoffCap {
		return s.opts.BackoffCap
	}
	return d
}

// CompleteSent records a fully successful delivery.
func (s *Service) CompleteSent(ctx context.Context, id string) error {
	return s.repo.MarkSent(ctx, id, s.now())
}

// CompleteRetry schedules another attempt after a transient failure. When
// retries are exhausted the item goes to DEAD_LETTER instead.
func (s *Service) CompleteRetry(ctx context.Context, n *domain.QueuedNotification, errMsg string) error {
	if n.RetryCount+1 >= s.opts.MaxRetries {
		if err := s.repo.MarkDeadLetter(ctx, n.ID, errMsg); err != nil {
			return err
		}
		logger.Error("notification dead-lettered",
			"notification_id", n.ID,
			"retry_count", n.RetryCount+1,
			"error", errMsg)
		return nil
	}

	next := s.now().Add(s.Backoff(n.RetryCount))
	if err := s.repo.MarkRetry(ctx, n.ID, next, errMsg); err != nil {
		return err
	}
	logger.Warn("notification scheduled for retry",
		"notification_id", n.ID,
		"retry_count", n.RetryCount+1,
		"next_attempt", next.Format(time.RFC3339),
		"error", errMsg)
	return nil
}

// CompleteFailed records a permanent failure. No retries follow.
func (s *Service) CompleteFailed(ctx context.Context, id string, errMsg string) error {
	if err := s.repo.MarkFailed(ctx, id, errMsg); err != nil {
		return err
	}
	logger.Error("notification failed permanently",
		"notification_id", id, "error", errMsg)
	return nil
}

// Maintain runs the periodic housekeeping that precedes a claim: releasing
// RETRYING items whose backoff elapsed and reaping stale SENDING claims.
func (s *Service) Maintain(ctx context.Context) error {
	released, err := s.repo.ReleaseDue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("release due retries: %w", err)
	}
	if released > 0 {
		logger.Info("retry backoffs elapsed", "released", released)
	}

	reaped, err := s.repo.ReapStale(ctx, s.now().Add(-s.opts.ClaimTimeout))
	if err != nil {
		return fmt.Errorf("reap stale claims: %w", err)
	}
	if reaped > 0 {
		logger.Warn("stale claims returned to pending", "reaped", reaped)
	}
	return nil
}

// Get returns one queue item.
func (s *Service) Get(ctx context.Context, id string) (*domain.QueuedNotification, error) {
	return s.repo.Get(ctx, id)
}

// List returns queue items matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.QueuedNotification, int, error) {
	return s.repo.List(ctx, filter)
}

// Depth returns item counts by status for the health endpoint and the
// reputation monitor.
func (s *Service) Depth(ctx context.Context) (map[domain.QueueStatus]int, error) {
	return s.repo.CountByStatus(ctx)
}
