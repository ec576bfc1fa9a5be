// Package notifxsendgrid delivers email through the SendGrid v3 API.
package notifxsendgrid

import (
	"context"
	"sort"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var sgErrors = errx.NewRegistry("NOTIFX_SENDGRID")

var (
	ErrSendFailed = sgErrors.Register("SEND_FAILED", errx.TypeExternal, 502, "SendGrid send email failed")
	ErrRejected   = sgErrors.Register("REJECTED", errx.TypeExternal, 502, "SendGrid rejected the email")
)

// API is the subset of the SendGrid client used here.
type API interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Provider implements notifx.EmailSender using SendGrid.
type Provider struct {
	client API
}

func NewProvider(client API) *Provider {
	return &Provider{client: client}
}

// NewFromAPIKey builds a provider around the default SendGrid client.
func NewFromAPIKey(apiKey string) *Provider {
	return NewProvider(sendgrid.NewSendClient(apiKey))
}

// Build converts msg into a SendGrid v3 message.
func Build(msg notifx.EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.FromName, msg.From))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(mail.NewEmail("", to))
	}
	m.AddPersonalizations(p)

	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.TextBody != "" {
		m.AddContent(mail.NewContent("text/plain", msg.TextBody))
	}
	if msg.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	}

	keys := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.SetCustomArg(k, msg.Tags[k])
	}
	return m
}

// SendEmail sends a single email via SendGrid.
func (p *Provider) SendEmail(ctx context.Context, msg notifx.EmailMessage) error {
	resp, err := p.client.SendWithContext(ctx, Build(msg))
	if err != nil {
		return sgErrors.NewWithCause(ErrSendFailed, err).WithDetail("to", msg.To)
	}
	if resp.StatusCode >= 400 {
		return sgErrors.New(ErrRejected).
			WithDetail("to", msg.To).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", resp.Body)
	}
	return nil
}
