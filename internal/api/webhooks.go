package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/events"
	"github.com/doron007/realtechee-notify/internal/pkg/httputil"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// sesNotification mirrors the SES event publishing payload. Only the fields
// the feedback loop needs are decoded.
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string `json:"messageId"`
	} `json:"mail"`
	Bounce struct {
		BounceType        string `json:"bounceType"`
		BounceSubType     string `json:"bounceSubType"`
		Timestamp         time.Time
		BouncedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint struct {
		ComplaintFeedbackType string `json:"complaintFeedbackType"`
		Timestamp             time.Time
		ComplainedRecipients  []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
	Delivery struct {
		Timestamp  time.Time
		Recipients []string `json:"recipients"`
	} `json:"delivery"`
}

// SESWebhook ingests SES bounce, complaint, and delivery notifications.
// SNS wraps the notification in an envelope with a Message string; raw
// delivery posts the notification directly. Both shapes are accepted.
func (h *Handlers) SESWebhook(w http.ResponseWriter, r *http.Request) {
	var envelope struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	body := json.NewDecoder(r.Body)
	var note sesNotification

	var raw json.RawMessage
	if err := body.Decode(&raw); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Message != "" {
		if err := json.Unmarshal([]byte(envelope.Message), &note); err != nil {
			httputil.BadRequest(w, "invalid SNS message body")
			return
		}
	} else if err := json.Unmarshal(raw, &note); err != nil {
		httputil.BadRequest(w, "invalid notification body")
		return
	}

	var feedbacks []*events.Feedback
	switch note.NotificationType {
	case "Bounce":
		for _, rec := range note.Bounce.BouncedRecipients {
			feedbacks = append(feedbacks, &events.Feedback{
				Provider:      "ses",
				ProviderID:    note.Mail.MessageID,
				Channel:       domain.ChannelEmail,
				Recipient:     rec.EmailAddress,
				Kind:          domain.EventBounced,
				BounceType:    note.Bounce.BounceType,
				BounceSubType: note.Bounce.BounceSubType,
				OccurredAt:    note.Bounce.Timestamp,
			})
		}
	case "Complaint":
		for _, rec := range note.Complaint.ComplainedRecipients {
			feedbacks = append(feedbacks, &events.Feedback{
				Provider:      "ses",
				ProviderID:    note.Mail.MessageID,
				Channel:       domain.ChannelEmail,
				Recipient:     rec.EmailAddress,
				Kind:          domain.EventComplained,
				ComplaintType: note.Complaint.ComplaintFeedbackType,
				OccurredAt:    note.Complaint.Timestamp,
			})
		}
	case "Delivery":
		for _, rec := range note.Delivery.Recipients {
			feedbacks = append(feedbacks, &events.Feedback{
				Provider:   "ses",
				ProviderID: note.Mail.MessageID,
				Channel:    domain.ChannelEmail,
				Recipient:  rec,
				Kind:       domain.EventDelivered,
				OccurredAt: note.Delivery.Timestamp,
			})
		}
	default:
		// Subscription confirmations and unknown types are acknowledged so
		// the provider stops retrying.
		logger.Info("ignoring ses notification", "type", note.NotificationType)
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	notificationID := h.lookupByProviderID(r, note.Mail.MessageID)
	for _, fb := range feedbacks {
		if err := h.events.IngestFeedback(r.Context(), notificationID, fb); err != nil {
			logger.Error("ses feedback ingestion failed",
				"provider_id", fb.ProviderID, "recipient", logger.RedactEmail(fb.Recipient),
				"error", err.Error())
			httputil.InternalError(w, err)
			return
		}
	}
	httputil.OK(w, map[string]interface{}{"status": "ok", "events": len(feedbacks)})
}

type smsWebhookRequest struct {
	MessageID string    `json:"message_id"`
	To        string    `json:"to"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SMSWebhook ingests delivery receipts from the SMS gateway.
func (h *Handlers) SMSWebhook(w http.ResponseWriter, r *http.Request) {
	var req smsWebhookRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.To == "" {
		httputil.BadRequest(w, "to is required")
		return
	}

	fb := &events.Feedback{
		Provider:   "sms_gateway",
		ProviderID: req.MessageID,
		Channel:    domain.ChannelSMS,
		Recipient:  req.To,
		OccurredAt: req.Timestamp,
	}
	switch req.Status {
	case "delivered":
		fb.Kind = domain.EventDelivered
	case "failed", "undelivered":
		fb.Kind = domain.EventBounced
		fb.BounceType = "Permanent"
	default:
		logger.Info("ignoring sms receipt", "status", req.Status)
		httputil.OK(w, map[string]string{"status": "ignored"})
		return
	}

	notificationID := h.lookupByProviderID(r, req.MessageID)
	if err := h.events.IngestFeedback(r.Context(), notificationID, fb); err != nil {
		logger.Error("sms feedback ingestion failed",
			"provider_id", req.MessageID, "recipient", logger.RedactPhone(req.To),
			"error", err.Error())
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "ok"})
}

// lookupByProviderID maps a provider message id back to the notification it
// belongs to via the sent event recorded at dispatch time. A miss is not an
// error; the feedback row is stored without a notification link.
func (h *Handlers) lookupByProviderID(r *http.Request, providerID string) string {
	if providerID == "" {
		return ""
	}
	items, _, err := h.events.List(r.Context(), events.ListFilter{
		ProviderID: providerID,
		EventType:  domain.EventSent,
		Limit:      1,
	})
	if err != nil || len(items) == 0 {
		return ""
	}
	return items[0].NotificationID
}
