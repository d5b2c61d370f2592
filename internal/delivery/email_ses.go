package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	appconfig "github.com/doron007/realtechee-notify/internal/config"
	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/secrets"
)

// SESAPI is the subset of the SES v2 client the email sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers email through the AWS SES v2 API.
type SESSender struct {
	client    SESAPI
	fromEmail string
	fromName  string
}

// NewSESSender builds the SES client with static credentials from the secret
// source.
func NewSESSender(ctx context.Context, cfg appconfig.SESConfig, creds *secrets.ProviderCredentials) (*SESSender, error) {
	provider := credentials.NewStaticCredentialsProvider(creds.SESAccessKey, creds.SESSecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &SESSender{
		client:    sesv2.NewFromConfig(awsCfg),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

// NewSESSenderWithClient injects a prebuilt client (tests).
func NewSESSenderWithClient(client SESAPI, fromEmail, fromName string) *SESSender {
	return &SESSender{client: client, fromEmail: fromEmail, fromName: fromName}
}

// Channel implements Sender.
func (s *SESSender) Channel() domain.Channel { return domain.ChannelEmail }

// Provider implements Sender.
func (s *SESSender) Provider() string { return "ses" }

// Send implements Sender.
func (s *SESSender) Send(ctx context.Context, recipient string, content *domain.RenderedContent) (string, error) {
	from := s.fromEmail
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	body := &sestypes.Body{
		Text: &sestypes.Content{Data: aws.String(content.BodyText)},
	}
	if content.BodyHTML != "" {
		body.Html = &sestypes.Content{Data: aws.String(content.BodyHTML)}
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(content.Subject)},
				Body:    body,
			},
		},
	})
	if err != nil {
		return "", classifySES(err)
	}
	return aws.ToString(out.MessageId), nil
}

// classifySES maps SES API errors to retriable or permanent classes.
func classifySES(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &SendError{Class: ClassRetriable, Code: domain.ErrCodeTimeout, Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected", "BadRequestException", "MailFromDomainNotVerifiedException", "AccountSuspendedException":
			return &SendError{Class: ClassPermanent, Code: domain.ErrCodeInvalidRecipient, Err: err}
		case "TooManyRequestsException", "SendingPausedException", "LimitExceededException":
			return &SendError{Class: ClassRetriable, Code: domain.ErrCodeProviderError, Err: err}
		}
	}
	return &SendError{Class: ClassRetriable, Code: domain.ErrCodeProviderError, Err: err}
}
