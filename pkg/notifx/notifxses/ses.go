// Package notifxses delivers email through Amazon SES.
package notifxses

import (
	"context"
	"sort"

	"github.com/Abraxas-365/facilitydir/pkg/notifx"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// API is the subset of the SES client used here.
type API interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESProvider implements notifx.EmailSender using AWS SES.
type SESProvider struct {
	client API
}

func NewSESProvider(client API) *SESProvider {
	return &SESProvider{client: client}
}

// NewFromRegion builds an SES client from the default AWS credential chain.
func NewFromRegion(ctx context.Context, region string) (*SESProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, sesErrors.NewWithCause(ErrConfig, err).WithDetail("region", region)
	}
	return NewSESProvider(ses.NewFromConfig(cfg)), nil
}

func content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

// SendEmail sends a single email via SES.
func (p *SESProvider) SendEmail(ctx context.Context, msg notifx.EmailMessage) error {
	body := &types.Body{}
	if msg.TextBody != "" {
		body.Text = content(msg.TextBody)
	}
	if msg.HTMLBody != "" {
		body.Html = content(msg.HTMLBody)
	}

	source := msg.From
	if msg.FromName != "" {
		source = msg.FromName + " <" + msg.From + ">"
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(source),
		Destination: &types.Destination{ToAddresses: msg.To},
		Message: &types.Message{
			Subject: content(msg.Subject),
			Body:    body,
		},
	}

	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}

	keys := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		input.Tags = append(input.Tags, types.MessageTag{Name: aws.String(k), Value: aws.String(msg.Tags[k])})
	}

	if _, err := p.client.SendEmail(ctx, input); err != nil {
		return sesErrors.NewWithCause(ErrSendFailed, err).
			WithDetail("to", msg.To).
			WithDetail("subject", msg.Subject)
	}

	return nil
}
