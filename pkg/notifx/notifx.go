// Package notifx sends transactional email: user invitations and
// registration notices to the inviting administrator.
package notifx

import (
	"context"
)

// EmailSender sends a single email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// Client validates messages, fills in the sender and renders templates.
type Client struct {
	provider  EmailSender
	from      string
	fromName  string
	templates *TemplateRegistry
}

// NewClient creates a client with the built-in templates registered.
func NewClient(provider EmailSender, from, fromName string) *Client {
	return &Client{
		provider:  provider,
		from:      from,
		fromName:  fromName,
		templates: DefaultTemplates(),
	}
}

// SendEmail sends an email through the configured provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage) error {
	if len(msg.To) == 0 {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "no recipients")
	}
	if msg.Subject == "" {
		return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", "empty subject")
	}
	if msg.From == "" {
		msg.From = c.from
		if msg.FromName == "" {
			msg.FromName = c.fromName
		}
	}
	return c.provider.SendEmail(ctx, msg)
}

// RegisterTemplate parses and stores a named template, replacing any existing one.
func (c *Client) RegisterTemplate(name string, tmpl Template) error {
	return c.templates.Register(name, tmpl)
}

// SendTemplate renders a named template with data and sends it to the recipients.
func (c *Client) SendTemplate(ctx context.Context, name string, data any, to ...string) error {
	rendered, err := c.templates.Render(name, data)
	if err != nil {
		return err
	}

	return c.SendEmail(ctx, EmailMessage{
		To:       to,
		Subject:  rendered.Subject,
		TextBody: rendered.Text,
		HTMLBody: rendered.HTML,
		Tags:     map[string]string{"template": name},
	})
}
