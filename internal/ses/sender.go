// Package ses wraps AWS SES v2 for campaign delivery: single-message sends
// with To/CC/BCC destinations and account quota inspection.
package ses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	appconfig "github.com/ignite/campaign-sender/internal/config"
	"github.com/ignite/campaign-sender/internal/pkg/logger"
)

// API is the subset of the SES v2 client the sender uses.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// Sender delivers campaign messages through AWS SES.
type Sender struct {
	client    API
	fromName  string
	fromEmail string
}

// Message is one outgoing email. To, CC and BCC are delivery destinations.
// DisplayCC is rendered as a visible Cc header only, so regular recipients
// see the campaign's CC list without SES delivering extra copies to it.
type Message struct {
	To          []string
	CC          []string
	BCC         []string
	DisplayCC   []string
	FromName    string
	FromEmail   string
	Subject     string
	HTMLContent string
	TextContent string
	ReplyTo     string
	CampaignID  string
}

// Result reports one send attempt.
type Result struct {
	Success   bool
	MessageID string
	Err       error
	SentAt    time.Time
}

// Quota is the account-level sending allowance.
type Quota struct {
	Max24HourSend   float64
	MaxSendRate     float64
	SentLast24Hours float64
	Sandbox         bool
}

// NewSender creates an SES sender using static credentials when configured,
// falling back to the default credential chain (IAM role on ECS/Lambda).
func NewSender(ctx context.Context, cfg appconfig.SESConfig) (*Sender, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return NewSenderWithClient(sesv2.NewFromConfig(awsCfg), cfg.FromName, cfg.FromEmail), nil
}

// NewSenderWithClient creates a sender around an existing client. Tests use
// this with a mock API.
func NewSenderWithClient(client API, fromName, fromEmail string) *Sender {
	return &Sender{client: client, fromName: fromName, fromEmail: fromEmail}
}

// Send delivers one message. SES-level rejection is reported in the Result
// rather than as an error so the dispatcher can count it and continue.
func (s *Sender) Send(ctx context.Context, msg *Message) *Result {
	fromName, fromEmail := s.fromName, s.fromEmail
	if msg.FromEmail != "" {
		fromEmail = msg.FromEmail
		fromName = msg.FromName
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", fromName, fromEmail)),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.CC,
			BccAddresses: msg.BCC,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if len(msg.DisplayCC) > 0 {
		input.Content.Simple.Headers = []types.MessageHeader{
			{Name: aws.String("Cc"), Value: aws.String(strings.Join(msg.DisplayCC, ", "))},
		}
	}
	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if msg.CampaignID != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
		}
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		if len(msg.To) > 0 {
			logger.Warn("ses send failed", "email", msg.To[0], "error", err.Error())
		}
		return &Result{Success: false, Err: err}
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}
	return &Result{Success: true, MessageID: messageID, SentAt: time.Now()}
}

// GetQuota fetches the account's sending limits. The dispatcher clamps the
// configured campaign rate to MaxSendRate before starting.
func (s *Sender) GetQuota(ctx context.Context) (Quota, error) {
	out, err := s.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return Quota{}, fmt.Errorf("getting SES account: %w", err)
	}

	q := Quota{Sandbox: !out.ProductionAccessEnabled}
	if out.SendQuota != nil {
		q.Max24HourSend = out.SendQuota.Max24HourSend
		q.MaxSendRate = out.SendQuota.MaxSendRate
		q.SentLast24Hours = out.SendQuota.SentLast24Hours
	}
	return q, nil
}
