// Package alerts publishes operator alerts raised by the reputation monitor
// and the dead-letter path. Alerts go to an SQS queue the on-call tooling
// consumes; without a queue URL they degrade to structured log lines.
package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one operator notification.
type Alert struct {
	Severity  Severity          `json:"severity"`
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	Provider  string            `json:"provider,omitempty"`
	Metrics   map[string]string `json:"metrics,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Alert kinds raised by the pipeline.
const (
	KindBounceRate    = "bounce_rate_threshold"
	KindComplaintRate = "complaint_rate_threshold"
	KindQuotaUsage    = "sending_quota_usage"
	KindDeadLetter    = "dead_letter"
	KindCredentials   = "credential_failure"
)

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher fans alerts to SQS, falling back to the log when no queue is
// configured or the publish fails. Alerting must never break the monitor.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

// NewPublisher creates an alert publisher. client may be nil for log-only
// deployments.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Publish emits one alert.
func (p *Publisher) Publish(ctx context.Context, a Alert) {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}

	if p.client == nil || p.queueURL == "" {
		p.logAlert(a)
		return
	}

	body, err := json.Marshal(a)
	if err != nil {
		logger.Error("marshal alert failed", "kind", a.Kind, "error", err.Error())
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = p.client.SendMessage(sendCtx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		logger.Error("publishing alert to SQS failed", "kind", a.Kind, "error", err.Error())
		p.logAlert(a)
	}
}

func (p *Publisher) logAlert(a Alert) {
	fields := []interface{}{
		"kind", a.Kind,
		"severity", string(a.Severity),
		"provider", a.Provider,
	}
	for k, v := range a.Metrics {
		fields = append(fields, k, v)
	}
	if a.Severity == SeverityCritical {
		logger.Error("ALERT: "+a.Message, fields...)
	} else {
		logger.Warn("ALERT: "+a.Message, fields...)
	}
}
