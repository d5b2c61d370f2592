package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	appconfig "github.com/doron007/realtechee-notify/internal/config"
	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/pkg/httpretry"
)

// SMSSender delivers text messages through the SMS gateway's HTTP API.
//
// The gateway retries are left to the dispatcher's queue-level backoff; the
// inner client only retries connection-level failures, so a gateway 500
// surfaces quickly instead of stalling the whole claimed batch.
type SMSSender struct {
	baseURL    string
	apiKey     string
	fromNumber string
	http       httpretry.HTTPDoer
}

// NewSMSSender creates the gateway client.
func NewSMSSender(cfg appconfig.SMSConfig, apiKey string) *SMSSender {
	return &SMSSender{
		baseURL:    cfg.BaseURL,
		apiKey:     apiKey,
		fromNumber: cfg.FromNumber,
		http:       httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, 1),
	}
}

// NewSMSSenderWithClient injects a prebuilt HTTP client (tests).
func NewSMSSenderWithClient(baseURL, apiKey, fromNumber string, client httpretry.HTTPDoer) *SMSSender {
	return &SMSSender{baseURL: baseURL, apiKey: apiKey, fromNumber: fromNumber, http: client}
}

// Channel implements Sender.
func (s *SMSSender) Channel() domain.Channel { return domain.ChannelSMS }

// Provider implements Sender.
func (s *SMSSender) Provider() string { return "sms_gateway" }

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Send implements Sender.
func (s *SMSSender) Send(ctx context.Context, recipient string, content *domain.RenderedContent) (string, error) {
	payload, err := json.Marshal(smsRequest{
		To:   recipient,
		From: s.fromNumber,
		Body: content.BodyText,
	})
	if err != nil {
		return "", &SendError{Class: ClassPermanent, Code: domain.ErrCodeProviderError, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", &SendError{Class: ClassPermanent, Code: domain.ErrCodeProviderError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.http.Do(req)
	if err != nil {
		code := domain.ErrCodeProviderError
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			code = domain.ErrCodeTimeout
		}
		return "", &SendError{Class: ClassRetriable, Code: code, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var sr smsResponse
		if err := json.Unmarshal(respBody, &sr); err != nil {
			return "", &SendError{Class: ClassRetriable, Code: domain.ErrCodeProviderError,
				Err: fmt.Errorf("decode gateway response: %w", err)}
		}
		return sr.MessageID, nil

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		// The gateway rejected the number or the body. Retrying cannot help.
		return "", &SendError{Class: ClassPermanent, Code: domain.ErrCodeInvalidRecipient,
			Err: fmt.Errorf("gateway rejected message (%d): %s", resp.StatusCode, string(respBody))}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &SendError{Class: ClassPermanent, Code: domain.ErrCodeProviderError,
			Err: fmt.Errorf("gateway auth failed (%d)", resp.StatusCode)}

	default:
		return "", &SendError{Class: ClassRetriable, Code: domain.ErrCodeProviderError,
			Err: fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody))}
	}
}
