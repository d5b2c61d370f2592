package suppression

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// Service implements suppression business logic. It is safe for concurrent
// use. All methods are pure: they take typed inputs and return typed outputs.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Normalize canonicalizes an address for storage and lookup. Email addresses
// are lowercased; phone numbers are stripped of separators.
func Normalize(address string, channel domain.Channel) string {
	address = strings.TrimSpace(address)
	switch channel {
	case domain.ChannelEmail:
		return strings.ToLower(address)
	case domain.ChannelSMS:
		var b strings.Builder
		for _, r := range address {
			if r >= '0' && r <= '9' || r == '+' {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return address
}

// IsSuppressed checks whether an address is blocked on a channel. Called by
// the delivery dispatcher immediately before every provider call.
func (s *Service) IsSuppressed(ctx context.Context, address string, channel domain.Channel) (bool, error) {
	return s.repo.IsSuppressed(ctx, Normalize(address, channel), channel)
}

// Suppress adds an address to the suppression list. Idempotent: suppressing
// an already-suppressed address preserves the existing record.
func (s *Service) Suppress(ctx context.Context, address string, channel domain.Channel, typ domain.SuppressionType, source domain.SuppressionSource) error {
	address = Normalize(address, channel)
	if address == "" {
		return fmt.Errorf("address is required")
	}

	entry := &domain.SuppressionEntry{
		ID:           uuid.NewString(),
		Address:      address,
		Channel:      channel,
		Type:         typ,
		IsActive:     true,
		Source:       source,
		SuppressedAt: time.Now().UTC(),
	}
	if err := s.repo.Suppress(ctx, entry); err != nil {
		return err
	}

	logger.Info("address suppressed",
		"address", logger.RedactRecipient(address),
		"channel", string(channel),
		"type", string(typ),
		"source", string(source))
	return nil
}

// SuppressBounce records a hard bounce from provider feedback, carrying the
// provider's bounce classification for later analysis.
func (s *Service) SuppressBounce(ctx context.Context, address string, channel domain.Channel, bounceType, bounceSubType string) error {
	address = Normalize(address, channel)
	if address == "" {
		return fmt.Errorf("address is required")
	}

	entry := &domain.SuppressionEntry{
		ID:            uuid.NewString(),
		Address:       address,
		Channel:       channel,
		Type:          domain.SuppressionBounce,
		BounceType:    bounceType,
		BounceSubType: bounceSubType,
		IsActive:      true,
		Source:        domain.SuppressionSourceWebhook,
		SuppressedAt:  time.Now().UTC(),
	}
	return s.repo.Suppress(ctx, entry)
}

// SuppressComplaint records a spam complaint from provider feedback.
func (s *Service) SuppressComplaint(ctx context.Context, address string, channel domain.Channel, complaintType string) error {
	address = Normalize(address, channel)
	if address == "" {
		return fmt.Errorf("address is required")
	}

	entry := &domain.SuppressionEntry{
		ID:            uuid.NewString(),
		Address:       address,
		Channel:       channel,
		Type:          domain.SuppressionComplaint,
		ComplaintType: complaintType,
		IsActive:      true,
		Source:        domain.SuppressionSourceWebhook,
		SuppressedAt:  time.Now().UTC(),
	}
	return s.repo.Suppress(ctx, entry)
}

// Reactivate lifts a suppression. The row stays for audit; only IsActive
// flips. Returns ErrNotFound if the address is not actively suppressed.
func (s *Service) Reactivate(ctx context.Context, address string, channel domain.Channel) error {
	address = Normalize(address, channel)
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if err := s.repo.Deactivate(ctx, address, channel); err != nil {
		return err
	}
	logger.Info("suppression lifted",
		"address", logger.RedactRecipient(address),
		"channel", string(channel))
	return nil
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.SuppressionEntry, int, error) {
	return s.repo.List(ctx, filter)
}

// Stats returns aggregate counts grouped by type and channel.
type Stats struct {
	Total     int            `json:"total"`
	ByType    map[string]int `json:"by_type"`
	ByChannel map[string]int `json:"by_channel"`
}

// GetStats computes suppression statistics for the admin dashboard.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	entries, total, err := s.repo.List(ctx, ListFilter{ActiveOnly: true, Limit: 0})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Total:     total,
		ByType:    make(map[string]int),
		ByChannel: make(map[string]int),
	}
	for _, e := range entries {
		stats.ByType[string(e.Type)]++
		stats.ByChannel[string(e.Channel)]++
	}
	return stats, nil
}
