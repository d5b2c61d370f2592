package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// Suppressor is the slice of the suppression service the feedback path uses.
type Suppressor interface {
	SuppressBounce(ctx context.Context, address string, channel domain.Channel, bounceType, bounceSubType string) error
	SuppressComplaint(ctx context.Context, address string, channel domain.Channel, complaintType string) error
}

// Service records delivery events and ingests provider feedback.
type Service struct {
	repo       Repository
	suppressor Suppressor
}

// NewService creates the event service. suppressor may be nil to disable
// feedback-driven suppression (tests, dry runs).
func NewService(repo Repository, suppressor Suppressor) *Service {
	return &Service{repo: repo, suppressor: suppressor}
}

// Record appends one event. Missing id and timestamp are filled in.
func (s *Service) Record(ctx context.Context, e *domain.NotificationEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.NotificationID == "" {
		return fmt.Errorf("notification id is required")
	}
	return s.repo.Append(ctx, e)
}

// AlreadySent reports whether the recipient already received this
// notification on this channel. Used by retried dispatches.
func (s *Service) AlreadySent(ctx context.Context, notificationID string, channel domain.Channel, recipient string) (bool, error) {
	return s.repo.HasSent(ctx, notificationID, channel, recipient)
}

// History returns the full event trail for one notification.
func (s *Service) History(ctx context.Context, notificationID string) ([]domain.NotificationEvent, error) {
	return s.repo.ByNotification(ctx, notificationID)
}

// List returns events matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.NotificationEvent, int, error) {
	return s.repo.List(ctx, filter)
}

// Feedback is a normalized provider webhook payload.
type Feedback struct {
	Provider   string
	ProviderID string
	Channel    domain.Channel
	Recipient  string
	// Kind is delivered, bounced, or complained.
	Kind domain.EventType
	// BounceType is the provider's classification ("Permanent", "Transient").
	BounceType    string
	BounceSubType string
	ComplaintType string
	OccurredAt    time.Time
}

// IngestFeedback appends the feedback as an event row and, for hard bounces
// and complaints, suppresses the recipient.
func (s *Service) IngestFeedback(ctx context.Context, notificationID string, fb *Feedback) error {
	switch fb.Kind {
	case domain.EventDelivered, domain.EventBounced, domain.EventComplained:
	default:
		return fmt.Errorf("unsupported feedback kind %q", fb.Kind)
	}
	if fb.Recipient == "" {
		return fmt.Errorf("feedback recipient is required")
	}
	if fb.OccurredAt.IsZero() {
		fb.OccurredAt = time.Now().UTC()
	}

	e := &domain.NotificationEvent{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Channel:        fb.Channel,
		Recipient:      fb.Recipient,
		Provider:       fb.Provider,
		ProviderID:     fb.ProviderID,
		ProviderStatus: fb.BounceType,
		EventType:      fb.Kind,
		Timestamp:      fb.OccurredAt,
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("append feedback event: %w", err)
	}

	if s.suppressor == nil {
		return nil
	}

	switch fb.Kind {
	case domain.EventBounced:
		if strings.EqualFold(fb.BounceType, "Permanent") {
			if err := s.suppressor.SuppressBounce(ctx, fb.Recipient, fb.Channel, fb.BounceType, fb.BounceSubType); err != nil {
				logger.Error("auto-suppression after bounce failed",
					"recipient", fb.Recipient, "error", err.Error())
			}
		}
	case domain.EventComplained:
		if err := s.suppressor.SuppressComplaint(ctx, fb.Recipient, fb.Channel, fb.ComplaintType); err != nil {
			logger.Error("auto-suppression after complaint failed",
				"recipient", fb.Recipient, "error", err.Error())
		}
	}
	return nil
}
