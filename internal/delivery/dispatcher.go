package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
	"github.com/doron007/realtechee-notify/internal/queue"
	"github.com/doron007/realtechee-notify/internal/template"
)

// SuppressionChecker answers the hot-path block question.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, address string, channel domain.Channel) (bool, error)
}

// TemplateStore fetches templates for rendering.
type TemplateStore interface {
	GetActive(ctx context.Context, id string, channel domain.Channel) (*domain.NotificationTemplate, error)
}

// EventRecorder appends audit events and answers the already-sent question
// for retried items.
type EventRecorder interface {
	Record(ctx context.Context, e *domain.NotificationEvent) error
	AlreadySent(ctx context.Context, notificationID string, channel domain.Channel, recipient string) (bool, error)
}

// QueueCompleter receives the aggregate outcome of a dispatch.
type QueueCompleter interface {
	CompleteSent(ctx context.Context, id string) error
	CompleteRetry(ctx context.Context, n *domain.QueuedNotification, errMsg string) error
	CompleteFailed(ctx context.Context, id string, errMsg string) error
}

// Dispatcher fans one claimed queue item out to channels and recipients.
type Dispatcher struct {
	senders     map[domain.Channel]Sender
	templates   TemplateStore
	renderer    *template.Renderer
	suppression SuppressionChecker
	events      EventRecorder
	queue       QueueCompleter
	sendTimeout time.Duration
	eventTTL    time.Duration
	now         func() time.Time
}

// NewDispatcher wires the dispatch dependencies. senders maps each enabled
// channel to its provider.
func NewDispatcher(
	senders map[domain.Channel]Sender,
	templates TemplateStore,
	renderer *template.Renderer,
	suppression SuppressionChecker,
	events EventRecorder,
	q QueueCompleter,
	sendTimeout, eventTTL time.Duration,
) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		senders:     senders,
		templates:   templates,
		renderer:    renderer,
		suppression: suppression,
		events:      events,
		queue:       q,
		sendTimeout: sendTimeout,
		eventTTL:    eventTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type attemptOutcome struct {
	sent        int
	retriable   int
	permanent   int
	suppressed  int
	alreadySent int
	lastErr     string
}

// Dispatch delivers one claimed item and records the aggregate outcome on
// the queue. The item must be in SENDING (freshly claimed).
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.QueuedNotification) error {
	var out attemptOutcome

	for _, channel := range n.Channels {
		sender, ok := d.senders[channel]
		if !ok {
			// Channel disabled in this deployment. Permanent for this item.
			out.permanent++
			out.lastErr = fmt.Sprintf("no sender configured for channel %s", channel)
			logger.Error("channel has no sender", "notification_id", n.ID, "channel", string(channel))
			continue
		}

		content, err := d.renderFor(ctx, n, channel)
		if err != nil {
			// Render failures are permanent: the same template and payload
			// will fail identically on every retry.
			out.permanent++
			out.lastErr = err.Error()
			d.record(ctx, n, channel, "", sender.Provider(), domain.EventFailed, domain.ErrCodeRenderError, err.Error(), 0)
			continue
		}

		for _, recipient := range n.Recipients {
			d.attempt(ctx, n, sender, channel, recipient, content, &out)
		}
	}

	return d.complete(ctx, n, out)
}

func (d *Dispatcher) attempt(ctx context.Context, n *domain.QueuedNotification, sender Sender, channel domain.Channel, recipient string, content *domain.RenderedContent, out *attemptOutcome) {
	// Retried items skip recipients that already went out on a previous
	// attempt so nobody is double-notified. If the history lookup fails the
	// attempt is deferred rather than risking a duplicate send.
	if n.RetryCount > 0 {
		done, err := d.events.AlreadySent(ctx, n.ID, channel, recipient)
		if err != nil {
			out.retriable++
			out.lastErr = fmt.Sprintf("sent history check: %v", err)
			logger.Error("sent history check failed",
				"notification_id", n.ID, "recipient", recipient, "error", err.Error())
			return
		}
		if done {
			out.alreadySent++
			return
		}
	}

	// Suppression is checked here, not at enqueue: the list can change
	// between the two moments.
	suppressed, err := d.suppression.IsSuppressed(ctx, recipient, channel)
	if err != nil {
		out.retriable++
		out.lastErr = fmt.Sprintf("suppression check: %v", err)
		logger.Error("suppression check failed",
			"notification_id", n.ID, "recipient", recipient, "error", err.Error())
		return
	}
	if suppressed {
		out.suppressed++
		d.record(ctx, n, channel, recipient, sender.Provider(), domain.EventFailed, domain.ErrCodeSuppressed, "recipient suppressed", 0)
		logger.Info("delivery blocked by suppression",
			"notification_id", n.ID, "recipient", recipient, "channel", string(channel))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	start := d.now()
	providerID, err := sender.Send(sendCtx, recipient, content)
	cancel()
	elapsed := d.now().Sub(start).Milliseconds()

	if err != nil {
		code := ErrorCode(err)
		if Retriable(err) {
			out.retriable++
		} else {
			out.permanent++
		}
		out.lastErr = err.Error()
		d.record(ctx, n, channel, recipient, sender.Provider(), domain.EventFailed, code, err.Error(), elapsed)
		logger.Warn("delivery attempt failed",
			"notification_id", n.ID, "recipient", recipient,
			"channel", string(channel), "error_code", code, "error", err.Error())
		return
	}

	out.sent++
	e := &domain.NotificationEvent{
		NotificationID: n.ID,
		Channel:        channel,
		Recipient:      recipient,
		Provider:       sender.Provider(),
		ProviderID:     providerID,
		EventType:      domain.EventSent,
		ProcessingMs:   elapsed,
	}
	d.recordEvent(ctx, e)
}

// complete maps the aggregate outcome onto a queue transition. Any retriable
// failure wins over success (the item comes back for the failed recipients);
// with no retriable failures, at least one send, on this attempt or an
// earlier one, means SENT; otherwise every recipient was suppressed or
// failed permanently and the item is FAILED.
func (d *Dispatcher) complete(ctx context.Context, n *domain.QueuedNotification, out attemptOutcome) error {
	switch {
	case out.retriable > 0:
		return d.queue.CompleteRetry(ctx, n, out.lastErr)
	case out.sent > 0 || out.alreadySent > 0:
		return d.queue.CompleteSent(ctx, n.ID)
	default:
		msg := out.lastErr
		if msg == "" {
			msg = "no deliverable recipients"
			if out.suppressed > 0 {
				msg = "all recipients suppressed"
			}
		}
		return d.queue.CompleteFailed(ctx, n.ID, msg)
	}
}

// renderFor produces content for one channel, honoring the direct-content
// bypass.
func (d *Dispatcher) renderFor(ctx context.Context, n *domain.QueuedNotification, channel domain.Channel) (*domain.RenderedContent, error) {
	if dc, ok := domain.DirectContentFromPayload(n.Payload); ok {
		return d.renderer.RenderDirect(dc), nil
	}

	tpl, err := d.templates.GetActive(ctx, n.TemplateID, channel)
	if err != nil {
		return nil, fmt.Errorf("load template %s for %s: %w", n.TemplateID, channel, err)
	}
	return d.renderer.Render(tpl, n.Payload)
}

func (d *Dispatcher) record(ctx context.Context, n *domain.QueuedNotification, channel domain.Channel, recipient, provider string, typ domain.EventType, code, msg string, elapsed int64) {
	d.recordEvent(ctx, &domain.NotificationEvent{
		NotificationID: n.ID,
		Channel:        channel,
		Recipient:      recipient,
		Provider:       provider,
		EventType:      typ,
		ErrorCode:      code,
		ErrorMessage:   msg,
		ProcessingMs:   elapsed,
	})
}

func (d *Dispatcher) recordEvent(ctx context.Context, e *domain.NotificationEvent) {
	e.Timestamp = d.now()
	if d.eventTTL > 0 {
		e.TTL = e.Timestamp.Add(d.eventTTL)
	}
	if err := d.events.Record(ctx, e); err != nil {
		// The audit trail must not block delivery. Log and move on.
		logger.Error("recording delivery event failed",
			"notification_id", e.NotificationID, "error", err.Error())
	}
}

// DispatchBatch claims nothing itself; it processes the items a sweep
// already claimed, sequentially. Context cancellation stops between items,
// leaving the rest for the stale-claim reaper.
func (d *Dispatcher) DispatchBatch(ctx context.Context, items []domain.QueuedNotification) error {
	for i := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.Dispatch(ctx, &items[i]); err != nil {
			logger.Error("dispatch failed",
				"notification_id", items[i].ID, "error", err.Error())
		}
	}
	return nil
}

var _ QueueCompleter = (*queue.Service)(nil)
