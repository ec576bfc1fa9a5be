// Package notifxconsole writes emails to the log instead of delivering them.
package notifxconsole

import (
	"context"
	"strings"
	"sync"

	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx"
)

// ConsoleProvider logs emails and keeps them in an outbox. Intended for development and testing.
type ConsoleProvider struct {
	mu     sync.Mutex
	outbox []notifx.EmailMessage
}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

// SendEmail logs the email details instead of sending it.
func (p *ConsoleProvider) SendEmail(_ context.Context, msg notifx.EmailMessage) error {
	p.mu.Lock()
	p.outbox = append(p.outbox, msg)
	p.mu.Unlock()

	logx.WithFields(logx.Fields{
		"from":    msg.From,
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}).Info("notifx/console: email sent (dev mode)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}

	return nil
}

// Sent returns a copy of every message sent so far.
func (p *ConsoleProvider) Sent() []notifx.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notifx.EmailMessage(nil), p.outbox...)
}
