package suppression

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu    sync.RWMutex
	store map[string]*domain.SuppressionEntry // keyed by "address|channel"
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*domain.SuppressionEntry)}
}

func key(address string, channel domain.Channel) string {
	return address + "|" + string(channel)
}

func (m *mockRepo) IsSuppressed(_ context.Context, address string, channel domain.Channel) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.store[key(address, channel)]
	return ok && e.IsActive, nil
}

func (m *mockRepo) Suppress(_ context.Context, e *domain.SuppressionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(e.Address, e.Channel)
	if existing, ok := m.store[k]; ok && existing.IsActive {
		return nil
	}
	m.store[k] = e
	return nil
}

func (m *mockRepo) Deactivate(_ context.Context, address string, channel domain.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.store[key(address, channel)]
	if !ok || !e.IsActive {
		return ErrNotFound
	}
	e.IsActive = false
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter) ([]domain.SuppressionEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.SuppressionEntry
	for _, e := range m.store {
		if f.ActiveOnly && !e.IsActive {
			continue
		}
		if f.Channel != "" && e.Channel != f.Channel {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		result = append(result, *e)
	}
	return result, len(result), nil
}

func (m *mockRepo) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.store {
		if e.IsActive {
			n++
		}
	}
	return n, nil
}

func TestSuppress_ThenIsSuppressed(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.Suppress(ctx, "Bounced@Example.com", domain.ChannelEmail, domain.SuppressionManual, domain.SuppressionSourceOperator); err != nil {
		t.Fatalf("Suppress: %v", err)
	}

	// Lookup must hit regardless of casing.
	got, err := svc.IsSuppressed(ctx, "bounced@example.com", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("IsSuppressed: %v", err)
	}
	if !got {
		t.Error("expected address to be suppressed")
	}
}

func TestIsSuppressed_ChannelScoped(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.Suppress(ctx, "user@example.com", domain.ChannelEmail, domain.SuppressionBounce, domain.SuppressionSourceWebhook); err != nil {
		t.Fatalf("Suppress: %v", err)
	}

	got, err := svc.IsSuppressed(ctx, "user@example.com", domain.ChannelSMS)
	if err != nil {
		t.Fatalf("IsSuppressed: %v", err)
	}
	if got {
		t.Error("email suppression must not block the sms channel")
	}
}

func TestSuppress_EmptyAddress(t *testing.T) {
	svc := NewService(newMockRepo())
	if err := svc.Suppress(context.Background(), "  ", domain.ChannelEmail, domain.SuppressionManual, domain.SuppressionSourceOperator); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestReactivate(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.Suppress(ctx, "user@example.com", domain.ChannelEmail, domain.SuppressionManual, domain.SuppressionSourceOperator); err != nil {
		t.Fatalf("Suppress: %v", err)
	}
	if err := svc.Reactivate(ctx, "user@example.com", domain.ChannelEmail); err != nil {
		t.Fatalf("Reactivate: %v", err)
	}

	got, err := svc.IsSuppressed(ctx, "user@example.com", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("IsSuppressed: %v", err)
	}
	if got {
		t.Error("reactivated address must not be suppressed")
	}
}

func TestReactivate_NotFound(t *testing.T) {
	svc := NewService(newMockRepo())
	err := svc.Reactivate(context.Background(), "nobody@example.com", domain.ChannelEmail)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNormalize_Phone(t *testing.T) {
	got := Normalize("+1 (555) 010-0123", domain.ChannelSMS)
	if got != "+15550100123" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestGetStats(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	_ = svc.SuppressBounce(ctx, "a@example.com", domain.ChannelEmail, "Permanent", "General")
	_ = svc.SuppressComplaint(ctx, "b@example.com", domain.ChannelEmail, "abuse")
	_ = svc.Suppress(ctx, "+15550100123", domain.ChannelSMS, domain.SuppressionManual, domain.SuppressionSourceOperator)

	stats, err := svc.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Total = %d, want 3", stats.Total)
	}
	if stats.ByType["bounce"] != 1 || stats.ByType["complaint"] != 1 || stats.ByType["manual"] != 1 {
		t.Errorf("ByType = %v", stats.ByType)
	}
	if stats.ByChannel["email"] != 2 || stats.ByChannel["sms"] != 1 {
		t.Errorf("ByChannel = %v", stats.ByChannel)
	}
}
