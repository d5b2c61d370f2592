package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/events"
	"github.com/doron007/realtechee-notify/internal/hooks"
	"github.com/doron007/realtechee-notify/internal/pkg/httputil"
	"github.com/doron007/realtechee-notify/internal/queue"
	"github.com/doron007/realtechee-notify/internal/reputation"
	"github.com/doron007/realtechee-notify/internal/suppression"
	"github.com/doron007/realtechee-notify/internal/template"
)

// Handlers holds the services the HTTP layer delegates to.
type Handlers struct {
	matcher      *hooks.Matcher
	hookRepo     hooks.Repository
	queue        *queue.Service
	templates    *template.Store
	suppressions *suppression.Service
	events       *events.Service
	monitor      *reputation.Monitor
}

// HealthCheck reports liveness plus queue depth.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if depth, err := h.queue.Depth(r.Context()); err == nil {
		resp["queue"] = depth
	}
	httputil.OK(w, resp)
}

// --- signals ---

type signalRequest struct {
	SignalType string         `json:"signal_type"`
	Payload    domain.Payload `json:"payload"`
	Source     string         `json:"source"`
}

// IngestSignal accepts a signal event and runs hook matching synchronously.
// An Idempotency-Key header makes replays safe: the second delivery gets a
// 409 and nothing is enqueued twice.
func (h *Handlers) IngestSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.SignalType == "" {
		httputil.BadRequest(w, "signal_type is required")
		return
	}

	s := &domain.SignalEvent{
		SignalType:     req.SignalType,
		Payload:        req.Payload,
		Source:         req.Source,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}

	enqueued, err := h.matcher.Ingest(r.Context(), s)
	if err != nil {
		if errors.Is(err, hooks.ErrDuplicateSignal) {
			httputil.ErrorCode(w, http.StatusConflict, "signal already ingested", "duplicate_signal")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.JSON(w, http.StatusAccepted, map[string]interface{}{
		"signal_id":              s.ID,
		"notifications_enqueued": enqueued,
	})
}

// GetSignal returns one stored signal.
func (h *Handlers) GetSignal(w http.ResponseWriter, r *http.Request) {
	s, err := h.matcher.Signal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, hooks.ErrNotFound) {
			httputil.NotFound(w, "signal not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, s)
}

// --- notifications ---

type enqueueRequest struct {
	TemplateID  string         `json:"template_id,omitempty"`
	Channels    []string       `json:"channels"`
	Recipients  []string       `json:"recipients"`
	Payload     domain.Payload `json:"payload,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	ScheduledAt *time.Time     `json:"scheduled_at,omitempty"`
}

// EnqueueNotification inserts a queue item directly, without a signal.
func (h *Handlers) EnqueueNotification(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, c := range req.Channels {
		channels = append(channels, domain.Channel(c))
	}

	n := &domain.QueuedNotification{
		ID:         uuid.NewString(),
		TemplateID: req.TemplateID,
		Channels:   channels,
		Recipients: req.Recipients,
		Payload:    req.Payload,
		Priority:   domain.ParsePriority(req.Priority),
	}
	if req.ScheduledAt != nil {
		n.ScheduledAt = req.ScheduledAt.UTC()
	}

	if err := h.queue.Enqueue(r.Context(), n); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, n)
}

// GetNotification returns one queue item.
func (h *Handlers) GetNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			httputil.NotFound(w, "notification not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, n)
}

// ListNotifications returns queue items, optionally filtered by status.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	filter := queue.ListFilter{
		Status: domain.QueueStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	items, total, err := h.queue.List(r.Context(), filter)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"items": items, "total": total})
}

// NotificationEvents returns the audit trail of one notification.
func (h *Handlers) NotificationEvents(w http.ResponseWriter, r *http.Request) {
	trail, err := h.events.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"events": trail})
}

// --- hooks ---

// ListHooks returns every configured hook.
func (h *Handlers) ListHooks(w http.ResponseWriter, r *http.Request) {
	all, err := h.hookRepo.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"hooks": all})
}

// CreateHook registers a hook.
func (h *Handlers) CreateHook(w http.ResponseWriter, r *http.Request) {
	var hk domain.NotificationHook
	if !httputil.Decode(w, r, &hk) {
		return
	}
	if err := validateHook(&hk); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	hk.ID = uuid.NewString()
	hk.CreatedAt = time.Now().UTC()
	hk.UpdatedAt = hk.CreatedAt
	if err := h.hookRepo.Create(r.Context(), &hk); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, hk)
}

// GetHook returns one hook.
func (h *Handlers) GetHook(w http.ResponseWriter, r *http.Request) {
	hk, err := h.hookRepo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, hooks.ErrNotFound) {
			httputil.NotFound(w, "hook not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, hk)
}

// UpdateHook replaces a hook's configuration.
func (h *Handlers) UpdateHook(w http.ResponseWriter, r *http.Request) {
	var hk domain.NotificationHook
	if !httputil.Decode(w, r, &hk) {
		return
	}
	hk.ID = chi.URLParam(r, "id")
	if err := validateHook(&hk); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := h.hookRepo.Update(r.Context(), &hk); err != nil {
		if errors.Is(err, hooks.ErrNotFound) {
			httputil.NotFound(w, "hook not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, hk)
}

// DeleteHook removes a hook.
func (h *Handlers) DeleteHook(w http.ResponseWriter, r *http.Request) {
	if err := h.hookRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, hooks.ErrNotFound) {
			httputil.NotFound(w, "hook not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

func validateHook(hk *domain.NotificationHook) error {
	if hk.Name == "" {
		return errors.New("name is required")
	}
	if hk.SignalType == "" {
		return errors.New("signal_type is required")
	}
	if len(hk.Channels) == 0 {
		return errors.New("at least one channel is required")
	}
	for _, c := range hk.Channels {
		if !c.Valid() {
			return errors.New("unknown channel " + string(c))
		}
	}
	for _, cond := range hk.Conditions {
		if cond.Field == "" {
			return errors.New("condition field is required")
		}
		switch cond.Op {
		case domain.OpEquals, domain.OpExists:
		default:
			return errors.New("unknown condition operator " + string(cond.Op))
		}
	}
	return nil
}

// --- templates ---

// ListTemplates returns every template.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := h.templates.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"templates": all})
}

// CreateTemplate validates syntax and saves a template.
func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.NotificationTemplate
	if !httputil.Decode(w, r, &t) {
		return
	}
	if err := h.templates.Create(r.Context(), &t); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, t)
}

// GetTemplate returns one template.
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, t)
}

// UpdateTemplate replaces a template's content.
func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var t domain.NotificationTemplate
	if !httputil.Decode(w, r, &t) {
		return
	}
	t.ID = chi.URLParam(r, "id")
	if err := h.templates.Update(r.Context(), &t); err != nil {
		if errors.Is(err, template.ErrNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, t)
}

// DeactivateTemplate retires a template. The row survives for queue items
// that still reference it.
func (h *Handlers) DeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.templates.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, template.ErrNotFound) {
			httputil.NotFound(w, "template not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// --- suppressions ---

type suppressionRequest struct {
	Address string `json:"address"`
	Channel string `json:"channel"`
	Type    string `json:"type,omitempty"`
}

// ListSuppressions returns suppression entries.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	entries, total, err := h.suppressions.List(r.Context(), suppression.ListFilter{
		Channel:    domain.Channel(r.URL.Query().Get("channel")),
		Type:       domain.SuppressionType(r.URL.Query().Get("type")),
		Search:     r.URL.Query().Get("search"),
		ActiveOnly: r.URL.Query().Get("include_inactive") == "",
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"entries": entries, "total": total})
}

// CreateSuppression adds a manual suppression.
func (h *Handlers) CreateSuppression(w http.ResponseWriter, r *http.Request) {
	var req suppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	channel := domain.Channel(req.Channel)
	if !channel.Valid() {
		httputil.BadRequest(w, "unknown channel")
		return
	}
	typ := domain.SuppressionType(req.Type)
	if typ == "" {
		typ = domain.SuppressionManual
	}

	if err := h.suppressions.Suppress(r.Context(), req.Address, channel, typ, domain.SuppressionSourceOperator); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, map[string]string{"address": req.Address, "channel": req.Channel})
}

// DeleteSuppression lifts a suppression.
func (h *Handlers) DeleteSuppression(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	channel := domain.Channel(r.URL.Query().Get("channel"))
	if address == "" || !channel.Valid() {
		httputil.BadRequest(w, "address and channel query parameters are required")
		return
	}

	if err := h.suppressions.Reactivate(r.Context(), address, channel); err != nil {
		if errors.Is(err, suppression.ErrNotFound) {
			httputil.NotFound(w, "suppression entry not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// SuppressionStats returns aggregate suppression counts.
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppressions.GetStats(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, stats)
}

// --- events / queue / reputation ---

// ListEvents returns audit events.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.events.List(r.Context(), events.ListFilter{
		NotificationID: r.URL.Query().Get("notification_id"),
		EventType:      domain.EventType(r.URL.Query().Get("type")),
		Recipient:      r.URL.Query().Get("recipient"),
		Limit:          queryInt(r, "limit", 50),
		Offset:         queryInt(r, "offset", 0),
	})
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"events": items, "total": total})
}

// QueueDepth returns item counts by status.
func (h *Handlers) QueueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, depth)
}

// ReputationHistory returns recent daily metrics for a provider.
func (h *Handlers) ReputationHistory(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.monitor.Recent(r.Context(), chi.URLParam(r, "provider"), queryInt(r, "days", 30))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"metrics": metrics})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
