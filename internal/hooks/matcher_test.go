package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/doron007/realtechee-notify/internal/directory"
	"github.com/doron007/realtechee-notify/internal/domain"
)

// mockHookRepo serves hooks from a slice.
type mockHookRepo struct {
	hooks []domain.NotificationHook
}

func (m *mockHookRepo) EnabledBySignalType(_ context.Context, signalType string) ([]domain.NotificationHook, error) {
	var out []domain.NotificationHook
	for _, h := range m.hooks {
		if h.Enabled && h.SignalType == signalType {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockHookRepo) Get(_ context.Context, id string) (*domain.NotificationHook, error) {
	for i := range m.hooks {
		if m.hooks[i].ID == id {
			return &m.hooks[i], nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockHookRepo) Create(_ context.Context, h *domain.NotificationHook) error {
	m.hooks = append(m.hooks, *h)
	return nil
}

func (m *mockHookRepo) Update(_ context.Context, h *domain.NotificationHook) error { return nil }
func (m *mockHookRepo) Delete(_ context.Context, id string) error                  { return nil }
func (m *mockHookRepo) List(_ context.Context) ([]domain.NotificationHook, error) {
	return m.hooks, nil
}

// mockSignalRepo stores signals in memory with idempotency key checks.
type mockSignalRepo struct {
	mu        sync.Mutex
	signals   map[string]*domain.SignalEvent
	idemKeys  map[string]bool
	processed map[string]bool
}

func newMockSignalRepo() *mockSignalRepo {
	return &mockSignalRepo{
		signals:   make(map[string]*domain.SignalEvent),
		idemKeys:  make(map[string]bool),
		processed: make(map[string]bool),
	}
}

func (m *mockSignalRepo) Insert(_ context.Context, s *domain.SignalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IdempotencyKey != "" {
		if m.idemKeys[s.IdempotencyKey] {
			return ErrDuplicateSignal
		}
		m.idemKeys[s.IdempotencyKey] = true
	}
	m.signals[s.ID] = s
	return nil
}

func (m *mockSignalRepo) MarkProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[id] = true
	return nil
}

func (m *mockSignalRepo) Unprocessed(_ context.Context, limit int) ([]domain.SignalEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SignalEvent
	for id, s := range m.signals {
		if !m.processed[id] {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *mockSignalRepo) Get(_ context.Context, id string) (*domain.SignalEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.signals[id]; ok {
		return s, nil
	}
	return nil, ErrNotFound
}

// captureEnqueuer records enqueued notifications.
type captureEnqueuer struct {
	mu    sync.Mutex
	items []*domain.QueuedNotification
}

func (c *captureEnqueuer) Enqueue(_ context.Context, n *domain.QueuedNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
	return nil
}

func requestCreatedHook() domain.NotificationHook {
	return domain.NotificationHook{
		ID:         "hook-1",
		Name:       "notify AE on new request",
		SignalType: "request.created",
		Conditions: []domain.HookCondition{
			{Field: "product", Op: domain.OpEquals, Value: "kitchen"},
		},
		Channels:        []domain.Channel{domain.ChannelEmail},
		RecipientEmails: []string{"ae@example.com"},
		TemplateID:      "tpl-request-created",
		Priority:        domain.PriorityHigh,
		Enabled:         true,
	}
}

func TestIngest_MatchEnqueues(t *testing.T) {
	repo := &mockHookRepo{hooks: []domain.NotificationHook{requestCreatedHook()}}
	signals := newMockSignalRepo()
	q := &captureEnqueuer{}
	m := NewMatcher(repo, signals, q, nil)

	n, err := m.Ingest(context.Background(), &domain.SignalEvent{
		SignalType: "request.created",
		Payload:    domain.Payload{"product": "kitchen", "agentEmail": "agent@example.com"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 1 {
		t.Fatalf("enqueued = %d, want 1", n)
	}

	item := q.items[0]
	if item.Status != domain.StatusPending {
		t.Errorf("Status = %s, want PENDING", item.Status)
	}
	if item.TemplateID != "tpl-request-created" {
		t.Errorf("TemplateID = %s", item.TemplateID)
	}
	if item.Priority != domain.PriorityHigh {
		t.Errorf("Priority = %d", item.Priority)
	}
	if len(item.Recipients) != 1 || item.Recipients[0] != "ae@example.com" {
		t.Errorf("Recipients = %v", item.Recipients)
	}
	if !signals.processed[item.SignalEventID] {
		t.Error("signal not marked processed")
	}
}

func TestIngest_FanOutOneItemPerRecipient(t *testing.T) {
	h := requestCreatedHook()
	h.RecipientEmails = nil
	h.RecipientDynamic = "agentEmail,ownerEmail"

	repo := &mockHookRepo{hooks: []domain.NotificationHook{h}}
	signals := newMockSignalRepo()
	q := &captureEnqueuer{}
	m := NewMatcher(repo, signals, q, nil)

	n, err := m.Ingest(context.Background(), &domain.SignalEvent{
		SignalType: "request.created",
		Payload: domain.Payload{
			"product":    "kitchen",
			"agentEmail": "agent@example.com",
			"ownerEmail": "owner@example.com",
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 2 {
		t.Fatalf("enqueued = %d, want 2", n)
	}
	if len(q.items) != 2 {
		t.Fatalf("queue items = %d, want 2", len(q.items))
	}
	var got []string
	for _, item := range q.items {
		if len(item.Recipients) != 1 || len(item.Channels) != 1 {
			t.Errorf("item %s carries %d recipients on %d channels, want 1 and 1",
				item.ID, len(item.Recipients), len(item.Channels))
			continue
		}
		got = append(got, item.Recipients[0])
	}
	want := []string{"agent@example.com", "owner@example.com"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Errorf("recipients = %v, want %v", got, want)
			break
		}
	}
}

func TestIngest_FanOutPerChannel(t *testing.T) {
	h := requestCreatedHook()
	h.Channels = []domain.Channel{domain.ChannelEmail, domain.ChannelSMS}

	repo := &mockHookRepo{hooks: []domain.NotificationHook{h}}
	signals := newMockSignalRepo()
	q := &captureEnqueuer{}
	m := NewMatcher(repo, signals, q, nil)

	n, err := m.Ingest(context.Background(), &domain.SignalEvent{
		SignalType: "request.created",
		Payload:    domain.Payload{"product": "kitchen"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 2 {
		t.Fatalf("enqueued = %d, want one item per channel", n)
	}
	channels := map[domain.Channel]bool{}
	for _, item := range q.items {
		channels[item.Channels[0]] = true
	}
	if !channels[domain.ChannelEmail] || !channels[domain.ChannelSMS] {
		t.Errorf("channels covered = %v, want email and sms", channels)
	}
}

func TestIngest_NoMatchStillMarksProcessed(t *testing.T) {
	repo := &mockHookRepo{hooks: []domain.NotificationHook{requestCreatedHook()}}
	signals := newMockSignalRepo()
	q := &captureEnqueuer{}
	m := NewMatcher(repo, signals, q, nil)

	s := &domain.SignalEvent{
		ID:         "sig-1",
		SignalType: "request.created",
		Payload:    domain.Payload{"product": "bathroom"},
	}
	n, err := m.Ingest(context.Background(), s)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 0 {
		t.Errorf("enqueued = %d, want 0", n)
	}
	if !signals.processed["sig-1"] {
		t.Error("non-matching signal must still be marked processed")
	}
}

func TestIngest_DuplicateIdempotencyKey(t *testing.T) {
	repo := &mockHookRepo{hooks: []domain.NotificationHook{requestCreatedHook()}}
	signals := newMockSignalRepo()
	q := &captureEnqueuer{}
	m := NewMatcher(repo, signals, q, nil)
	ctx := context.Background()

	first := &domain.SignalEvent{
		SignalType:     "request.created",
		IdempotencyKey: "req-123",
		Payload:        domain.Payload{"product": "kitchen"},
	}
	if _, err := m.Ingest(ctx, first); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	dup := &domain.SignalEvent{
		SignalType:     "request.created",
		IdempotencyKey: "req-123",
		Payload:        domain.Payload{"product": "kitchen"},
	}
	_, err := m.Ingest(ctx, dup)
	if !errors.Is(err, ErrDuplicateSignal) {
		t.Fatalf("expected ErrDuplicateSignal, got %v", err)
	}
	if len(q.items) != 1 {
		t.Errorf("enqueued %d items, want 1", len(q.items))
	}
}

func TestProcess_MalformedConditionSkipsHookOnly(t *testing.T) {
	bad := requestCreatedHook()
	bad.ID = "hook-bad"
	bad.Conditions = []domain.HookCondition{{Field: "product", Op: "regex", Value: ".*"}}

	good := requestCreatedHook()
	good.ID = "hook-good"
	good.Conditions = nil

	repo := &mockHookRepo{hooks: []domain.NotificationHook{bad, good}}
	signals := newMockSignalRepo()
	q := &captureEnqueuer{}
	m := NewMatcher(repo, signals, q, nil)

	n, err := m.Ingest(context.Background(), &domain.SignalEvent{
		SignalType: "request.created",
		Payload:    domain.Payload{"product": "kitchen"},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if n != 1 {
		t.Errorf("enqueued = %d, want 1 (good hook only)", n)
	}
}

func TestMatches_Conditions(t *testing.T) {
	cases := []struct {
		name    string
		conds   []domain.HookCondition
		payload domain.Payload
		want    bool
		wantErr bool
	}{
		{
			name:    "eq string match",
			conds:   []domain.HookCondition{{Field: "status", Op: domain.OpEquals, Value: "new"}},
			payload: domain.Payload{"status": "new"},
			want:    true,
		},
		{
			name:    "eq number match",
			conds:   []domain.HookCondition{{Field: "attempt", Op: domain.OpEquals, Value: "3"}},
			payload: domain.Payload{"attempt": float64(3)},
			want:    true,
		},
		{
			name:    "eq missing field",
			conds:   []domain.HookCondition{{Field: "status", Op: domain.OpEquals, Value: "new"}},
			payload: domain.Payload{},
			want:    false,
		},
		{
			name:    "exists on empty string",
			conds:   []domain.HookCondition{{Field: "note", Op: domain.OpExists}},
			payload: domain.Payload{"note": ""},
			want:    false,
		},
		{
			name: "nested dotted path",
			conds: []domain.HookCondition{
				{Field: "agent.email", Op: domain.OpExists},
			},
			payload: domain.Payload{"agent": map[string]interface{}{"email": "a@example.com"}},
			want:    true,
		},
		{
			name: "conjunction one fails",
			conds: []domain.HookCondition{
				{Field: "status", Op: domain.OpEquals, Value: "new"},
				{Field: "owner", Op: domain.OpExists},
			},
			payload: domain.Payload{"status": "new"},
			want:    false,
		},
		{
			name:    "unknown operator",
			conds:   []domain.HookCondition{{Field: "status", Op: "gt", Value: "1"}},
			payload: domain.Payload{"status": "new"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := &domain.NotificationHook{Conditions: tc.conds}
			got, err := Matches(h, tc.payload)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Matches: %v", err)
			}
			if got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolveRecipients_MergesAndDedupes(t *testing.T) {
	h := requestCreatedHook()
	h.RecipientRoles = []string{"account_manager"}
	h.RecipientDynamic = "agentEmail,ownerEmail"

	resolver := directory.StaticResolver{
		"account_manager": {"am@example.com", "AE@example.com"},
	}
	m := NewMatcher(&mockHookRepo{}, newMockSignalRepo(), &captureEnqueuer{}, resolver)

	got := m.resolveRecipients(context.Background(), &h, domain.ChannelEmail, domain.Payload{
		"agentEmail": "agent@example.com",
		"ownerEmail": "ae@example.com", // duplicate of static, different case
	})

	want := []string{"ae@example.com", "am@example.com", "agent@example.com"}
	if len(got) != len(want) {
		t.Fatalf("recipients = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipients[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSweepUnprocessed(t *testing.T) {
	repo := &mockHookRepo{hooks: []domain.NotificationHook{requestCreatedHook()}}
	signals := newMockSignalRepo()
	q := &captureEnqueuer{}
	m := NewMatcher(repo, signals, q, nil)
	ctx := context.Background()

	// Stored but never evaluated, as after a crash.
	_ = signals.Insert(ctx, &domain.SignalEvent{
		ID:         "sig-stale",
		SignalType: "request.created",
		Payload:    domain.Payload{"product": "kitchen"},
	})

	n, err := m.SweepUnprocessed(ctx, 10)
	if err != nil {
		t.Fatalf("SweepUnprocessed: %v", err)
	}
	if n != 1 {
		t.Errorf("enqueued = %d, want 1", n)
	}
	if !signals.processed["sig-stale"] {
		t.Error("swept signal not marked processed")
	}
}
