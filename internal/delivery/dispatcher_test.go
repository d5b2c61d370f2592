package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/template"
)

// fakeSender scripts per-recipient results.
type fakeSender struct {
	channel domain.Channel
	mu      sync.Mutex
	results map[string]error // recipient -> error (nil = success)
	sends   []string
}

func (f *fakeSender) Channel() domain.Channel { return f.channel }
func (f *fakeSender) Provider() string        { return "fake" }

func (f *fakeSender) Send(_ context.Context, recipient string, _ *domain.RenderedContent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recipient)
	if err, ok := f.results[recipient]; ok && err != nil {
		return "", err
	}
	return "prov-" + recipient, nil
}

// fakeSuppression blocks a fixed set of addresses.
type fakeSuppression struct {
	blocked map[string]bool
	err     error
}

func (f *fakeSuppression) IsSuppressed(_ context.Context, address string, _ domain.Channel) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.blocked[address], nil
}

// fakeTemplates serves one template for all lookups.
type fakeTemplates struct {
	tpl *domain.NotificationTemplate
	err error
}

func (f *fakeTemplates) GetActive(_ context.Context, id string, _ domain.Channel) (*domain.NotificationTemplate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tpl, nil
}

// fakeEvents captures recorded events in memory.
type fakeEvents struct {
	mu      sync.Mutex
	events  []domain.NotificationEvent
	sent    map[string]bool // "id|channel|recipient"
	sentErr error           // forced AlreadySent failure
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{sent: make(map[string]bool)}
}

func (f *fakeEvents) Record(_ context.Context, e *domain.NotificationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *e)
	if e.EventType == domain.EventSent {
		f.sent[e.NotificationID+"|"+string(e.Channel)+"|"+e.Recipient] = true
	}
	return nil
}

func (f *fakeEvents) AlreadySent(_ context.Context, id string, ch domain.Channel, recipient string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sentErr != nil {
		return false, f.sentErr
	}
	return f.sent[id+"|"+string(ch)+"|"+recipient], nil
}

func (f *fakeEvents) byType(t domain.EventType) []domain.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.NotificationEvent
	for _, e := range f.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeQueue records the completion call.
type fakeQueue struct {
	sentID   string
	retried  *domain.QueuedNotification
	failedID string
	errMsg   string
}

func (f *fakeQueue) CompleteSent(_ context.Context, id string) error {
	f.sentID = id
	return nil
}

func (f *fakeQueue) CompleteRetry(_ context.Context, n *domain.QueuedNotification, msg string) error {
	f.retried = n
	f.errMsg = msg
	return nil
}

func (f *fakeQueue) CompleteFailed(_ context.Context, id, msg string) error {
	f.failedID = id
	f.errMsg = msg
	return nil
}

func testItem(recipients ...string) *domain.QueuedNotification {
	return &domain.QueuedNotification{
		ID:         "n1",
		TemplateID: "tpl-1",
		Channels:   []domain.Channel{domain.ChannelEmail},
		Recipients: recipients,
		Payload:    domain.Payload{"name": "Sam"},
		Status:     domain.StatusSending,
	}
}

func testDispatcher(sender *fakeSender, sup *fakeSuppression, ev *fakeEvents, q *fakeQueue) *Dispatcher {
	tpl := &domain.NotificationTemplate{
		ID:          "tpl-1",
		Channel:     domain.ChannelEmail,
		Subject:     "Hello {{ name }}",
		ContentText: "Hi {{ name }}",
		Variables:   []string{"name"},
	}
	return NewDispatcher(
		map[domain.Channel]Sender{sender.channel: sender},
		&fakeTemplates{tpl: tpl},
		template.NewRenderer(160),
		sup,
		ev,
		q,
		time.Second,
		0,
	)
}

func TestDispatch_AllSent(t *testing.T) {
	sender := &fakeSender{channel: domain.ChannelEmail}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, &fakeSuppression{}, ev, q)

	if err := d.Dispatch(context.Background(), testItem("a@example.com", "b@example.com")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.sentID != "n1" {
		t.Errorf("expected CompleteSent, got %+v", q)
	}
	if got := len(ev.byType(domain.EventSent)); got != 2 {
		t.Errorf("sent events = %d, want 2", got)
	}
}

func TestDispatch_SuppressedRecipientSkipped(t *testing.T) {
	sender := &fakeSender{channel: domain.ChannelEmail}
	sup := &fakeSuppression{blocked: map[string]bool{"blocked@example.com": true}}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, sup, ev, q)

	if err := d.Dispatch(context.Background(), testItem("blocked@example.com", "ok@example.com")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// The provider must never see the suppressed address.
	for _, r := range sender.sends {
		if r == "blocked@example.com" {
			t.Error("suppressed recipient reached the provider")
		}
	}
	if q.sentID != "n1" {
		t.Errorf("expected CompleteSent, got %+v", q)
	}

	failed := ev.byType(domain.EventFailed)
	if len(failed) != 1 || failed[0].ErrorCode != domain.ErrCodeSuppressed {
		t.Errorf("failed events = %+v, want one with code suppressed", failed)
	}
}

func TestDispatch_AllSuppressedFailsItem(t *testing.T) {
	sender := &fakeSender{channel: domain.ChannelEmail}
	sup := &fakeSuppression{blocked: map[string]bool{"blocked@example.com": true}}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, sup, ev, q)

	if err := d.Dispatch(context.Background(), testItem("blocked@example.com")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.failedID != "n1" || q.sentID != "" {
		t.Errorf("all-suppressed item must fail, got %+v", q)
	}
	if q.errMsg != "all recipients suppressed" {
		t.Errorf("errMsg = %q", q.errMsg)
	}
	if len(sender.sends) != 0 {
		t.Errorf("provider called %d times, want 0", len(sender.sends))
	}
}

func TestDispatch_RetriableFailureRetriesItem(t *testing.T) {
	sender := &fakeSender{
		channel: domain.ChannelEmail,
		results: map[string]error{
			"flaky@example.com": &SendError{Class: ClassRetriable, Code: domain.ErrCodeProviderError, Err: errors.New("503")},
		},
	}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, &fakeSuppression{}, ev, q)

	if err := d.Dispatch(context.Background(), testItem("ok@example.com", "flaky@example.com")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.retried == nil {
		t.Fatalf("expected CompleteRetry, got %+v", q)
	}
}

func TestDispatch_RetrySkipsAlreadySentRecipients(t *testing.T) {
	sender := &fakeSender{
		channel: domain.ChannelEmail,
		results: map[string]error{
			"flaky@example.com": &SendError{Class: ClassRetriable, Code: domain.ErrCodeProviderError, Err: errors.New("503")},
		},
	}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, &fakeSuppression{}, ev, q)
	ctx := context.Background()

	item := testItem("ok@example.com", "flaky@example.com")
	if err := d.Dispatch(ctx, item); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}

	// Second attempt: gateway recovered.
	sender.mu.Lock()
	sender.results = nil
	sender.sends = nil
	sender.mu.Unlock()
	item.RetryCount = 1
	item.Status = domain.StatusSending

	if err := d.Dispatch(ctx, item); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}

	if len(sender.sends) != 1 || sender.sends[0] != "flaky@example.com" {
		t.Errorf("retry sends = %v, want only the failed recipient", sender.sends)
	}
	if q.sentID != "n1" {
		t.Errorf("expected CompleteSent after recovery, got %+v", q)
	}
}

func TestDispatch_PermanentFailureFailsItem(t *testing.T) {
	sender := &fakeSender{
		channel: domain.ChannelEmail,
		results: map[string]error{
			"bad@example.com": &SendError{Class: ClassPermanent, Code: domain.ErrCodeInvalidRecipient, Err: errors.New("rejected")},
		},
	}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, &fakeSuppression{}, ev, q)

	if err := d.Dispatch(context.Background(), testItem("bad@example.com")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.failedID != "n1" {
		t.Errorf("expected CompleteFailed, got %+v", q)
	}
}

func TestDispatch_RenderErrorIsPermanent(t *testing.T) {
	sender := &fakeSender{channel: domain.ChannelEmail}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, &fakeSuppression{}, ev, q)

	item := testItem("ok@example.com")
	item.Payload = domain.Payload{} // "name" missing

	if err := d.Dispatch(context.Background(), item); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.failedID != "n1" {
		t.Errorf("expected CompleteFailed on render error, got %+v", q)
	}
	if len(sender.sends) != 0 {
		t.Error("provider must not be called when rendering fails")
	}

	failed := ev.byType(domain.EventFailed)
	if len(failed) != 1 || failed[0].ErrorCode != domain.ErrCodeRenderError {
		t.Errorf("failed events = %+v", failed)
	}
}

func TestDispatch_DirectContentBypassesTemplates(t *testing.T) {
	sender := &fakeSender{channel: domain.ChannelEmail}
	ev := newFakeEvents()
	q := &fakeQueue{}

	d := NewDispatcher(
		map[domain.Channel]Sender{domain.ChannelEmail: sender},
		&fakeTemplates{err: errors.New("template store must not be touched")},
		template.NewRenderer(160),
		&fakeSuppression{},
		ev,
		q,
		time.Second,
		0,
	)

	item := testItem("ok@example.com")
	item.TemplateID = ""
	item.Payload = domain.Payload{
		domain.DirectContentKey: map[string]interface{}{
			"subject": "raw", "body_text": "raw body",
		},
	}

	if err := d.Dispatch(context.Background(), item); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.sentID != "n1" {
		t.Errorf("expected CompleteSent, got %+v", q)
	}
}

func TestDispatch_SentHistoryCheckErrorIsRetriable(t *testing.T) {
	sender := &fakeSender{channel: domain.ChannelEmail}
	ev := newFakeEvents()
	ev.sentErr = errors.New("event store down")
	q := &fakeQueue{}
	d := testDispatcher(sender, &fakeSuppression{}, ev, q)

	item := testItem("ok@example.com")
	item.RetryCount = 1

	if err := d.Dispatch(context.Background(), item); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.retried == nil {
		t.Errorf("expected CompleteRetry when sent history lookup fails, got %+v", q)
	}
	if len(sender.sends) != 0 {
		t.Error("must not send when the duplicate guard cannot be consulted")
	}
}

func TestDispatch_SuppressionCheckErrorIsRetriable(t *testing.T) {
	sender := &fakeSender{channel: domain.ChannelEmail}
	ev := newFakeEvents()
	q := &fakeQueue{}
	d := testDispatcher(sender, &fakeSuppression{err: errors.New("db down")}, ev, q)

	if err := d.Dispatch(context.Background(), testItem("ok@example.com")); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if q.retried == nil {
		t.Errorf("expected CompleteRetry when suppression lookup fails, got %+v", q)
	}
	if len(sender.sends) != 0 {
		t.Error("fail closed: provider must not be called when the check errors")
	}
}
