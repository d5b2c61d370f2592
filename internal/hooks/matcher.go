package hooks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/directory"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// Matcher evaluates hooks against incoming signals and enqueues the
// resulting notifications.
type Matcher struct {
	repo     Repository
	signals  SignalRepository
	enqueuer Enqueuer
	resolver directory.Resolver
}

// NewMatcher creates a hook matcher. resolver may be nil when no directory
// collaborator is configured; role recipients then resolve to nothing.
func NewMatcher(repo Repository, signals SignalRepository, enqueuer Enqueuer, resolver directory.Resolver) *Matcher {
	return &Matcher{repo: repo, signals: signals, enqueuer: enqueuer, resolver: resolver}
}

// Ingest persists a signal and immediately evaluates it against the enabled
// hooks. Returns the number of notifications enqueued. A duplicate
// idempotency key returns ErrDuplicateSignal without evaluation.
func (m *Matcher) Ingest(ctx context.Context, s *domain.SignalEvent) (int, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.EmittedAt.IsZero() {
		s.EmittedAt = time.Now().UTC()
	}
	if s.SignalType == "" {
		return 0, fmt.Errorf("signal type is required")
	}

	if err := m.signals.Insert(ctx, s); err != nil {
		return 0, err
	}
	return m.Process(ctx, s)
}

// Process evaluates one stored signal against every enabled hook for its
// type. The signal is marked processed even when no hook matched, so
// reprocessing sweeps never pick it up again.
func (m *Matcher) Process(ctx context.Context, s *domain.SignalEvent) (int, error) {
	hooks, err := m.repo.EnabledBySignalType(ctx, s.SignalType)
	if err != nil {
		return 0, fmt.Errorf("load hooks for %s: %w", s.SignalType, err)
	}

	enqueued := 0
	for i := range hooks {
		h := &hooks[i]
		matched, err := Matches(h, s.Payload)
		if err != nil {
			// A malformed condition disables this hook for this signal but
			// must not block the other hooks.
			logger.Warn("hook condition malformed, skipping hook",
				"hook_id", h.ID, "hook_name", h.Name, "error", err.Error())
			continue
		}
		if !matched {
			continue
		}

		items := m.buildNotifications(ctx, h, s)
		if len(items) == 0 {
			// Hook matched but resolved to zero recipients.
			logger.Warn("matched hook has no resolvable recipients",
				"hook_id", h.ID, "signal_id", s.ID)
			continue
		}
		for _, n := range items {
			if err := m.enqueuer.Enqueue(ctx, n); err != nil {
				return enqueued, fmt.Errorf("enqueue for hook %s: %w", h.ID, err)
			}
			enqueued++
		}
	}

	if err := m.signals.MarkProcessed(ctx, s.ID); err != nil {
		return enqueued, fmt.Errorf("mark signal %s processed: %w", s.ID, err)
	}

	logger.Info("signal processed",
		"signal_id", s.ID, "signal_type", s.SignalType,
		"hooks_evaluated", len(hooks), "notifications_enqueued", enqueued)
	return enqueued, nil
}

// Signal returns one stored signal by ID.
func (m *Matcher) Signal(ctx context.Context, id string) (*domain.SignalEvent, error) {
	return m.signals.Get(ctx, id)
}

// SweepUnprocessed evaluates signals that were stored but never processed,
// typically after a crash between insert and evaluation.
func (m *Matcher) SweepUnprocessed(ctx context.Context, limit int) (int, error) {
	signals, err := m.signals.Unprocessed(ctx, limit)
	if err != nil {
		return 0, err
	}
	total := 0
	for i := range signals {
		n, err := m.Process(ctx, &signals[i])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Matches reports whether the hook's condition conjunction holds for the
// payload. A condition with an unknown operator is a malformed-hook error.
func Matches(h *domain.NotificationHook, p domain.Payload) (bool, error) {
	for _, c := range h.Conditions {
		if c.Field == "" {
			return false, fmt.Errorf("condition has empty field")
		}
		switch c.Op {
		case domain.OpEquals:
			v, ok := p.Field(c.Field)
			if !ok {
				return false, nil
			}
			if !scalarEquals(v, c.Value) {
				return false, nil
			}
		case domain.OpExists:
			v, ok := p.Field(c.Field)
			if !ok || isEmpty(v) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unknown condition operator %q", c.Op)
		}
	}
	return true, nil
}

// scalarEquals compares a payload value against a condition value string.
// Numbers arrive as float64 from JSON, so integral floats compare equal to
// their integer literal.
func scalarEquals(v interface{}, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case bool:
		return fmt.Sprintf("%t", t) == want
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t)) == want
		}
		return fmt.Sprintf("%g", t) == want
	}
	return false
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

// buildNotifications resolves the hook's recipients per channel and emits
// one queue item per (channel, recipient) pair. One slow or bouncing
// recipient then retries, fails, or dead-letters alone without dragging the
// rest of the fan-out with it.
func (m *Matcher) buildNotifications(ctx context.Context, h *domain.NotificationHook, s *domain.SignalEvent) []*domain.QueuedNotification {
	now := time.Now().UTC()
	var out []*domain.QueuedNotification
	for _, channel := range h.Channels {
		for _, recipient := range m.resolveRecipients(ctx, h, channel, s.Payload) {
			out = append(out, &domain.QueuedNotification{
				ID:            uuid.NewString(),
				SignalEventID: s.ID,
				TemplateID:    h.TemplateID,
				Channels:      []domain.Channel{channel},
				Recipients:    []string{recipient},
				Payload:       s.Payload,
				Priority:      h.Priority,
				Status:        domain.StatusPending,
				ScheduledAt:   now,
				CreatedAt:     now,
			})
		}
	}
	return out
}

// resolveRecipients merges static, role, and dynamic recipients for one
// channel, deduplicated and in stable order (static, then roles, then
// dynamic).
func (m *Matcher) resolveRecipients(ctx context.Context, h *domain.NotificationHook, channel domain.Channel, p domain.Payload) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, addr)
	}

	for _, addr := range h.RecipientEmails {
		add(addr)
	}

	if len(h.RecipientRoles) > 0 && m.resolver != nil {
		for _, role := range h.RecipientRoles {
			addrs, err := m.resolver.ResolveRole(ctx, role, channel)
			if err != nil {
				logger.Warn("role resolution failed",
					"hook_id", h.ID, "role", role, "error", err.Error())
				continue
			}
			for _, a := range addrs {
				add(a)
			}
		}
	}

	for _, field := range strings.Split(h.RecipientDynamic, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if v, ok := p.StringField(field); ok {
			add(v)
		}
	}

	return out
}
