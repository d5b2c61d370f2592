package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/doron007/realtechee-notify/internal/domain"
)

// ErrorClass tells the dispatcher whether a failed provider call is worth
// retrying.
type ErrorClass int

const (
	// ClassRetriable covers timeouts, throttling, and provider 5xx.
	ClassRetriable ErrorClass = iota
	// ClassPermanent covers rejected recipients and bad requests. Retrying
	// cannot succeed.
	ClassPermanent
)

// SendError is a classified provider failure.
type SendError struct {
	Class ErrorClass
	// Code is one of the well-known event error codes.
	Code string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Retriable inspects an error returned by a Sender. Unclassified errors
// default to retriable so a provider quirk never silently drops mail.
func Retriable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Class == ClassRetriable
	}
	return true
}

// ErrorCode extracts the event error code from a classified error.
func ErrorCode(err error) string {
	var se *SendError
	if errors.As(err, &se) {
		return se.Code
	}
	return domain.ErrCodeProviderError
}

// Sender delivers one rendered message to one recipient on one channel.
type Sender interface {
	// Channel is the delivery channel this sender serves.
	Channel() domain.Channel
	// Provider names the upstream service for event rows ("ses", "sms_gateway").
	Provider() string
	// Send performs the provider call and returns the provider's message id.
	// Failures should be *SendError so the dispatcher can classify them.
	Send(ctx context.Context, recipient string, content *domain.RenderedContent) (providerID string, err error)
}
