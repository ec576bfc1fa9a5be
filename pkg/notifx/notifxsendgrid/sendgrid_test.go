package notifxsendgrid

import (
	"context"
	"testing"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	sent   *mail.SGMailV3
	status int
}

func (f *fakeClient) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	return &rest.Response{StatusCode: f.status, Body: "{}"}, nil
}

var msg = notifx.EmailMessage{
	From:     "noreply@example.com",
	FromName: "Directory",
	To:       []string{"a@example.com"},
	Subject:  "Hello",
	TextBody: "text",
	HTMLBody: "<p>html</p>",
	Tags:     map[string]string{"template": "invitation"},
}

func TestBuild(t *testing.T) {
	m := Build(msg)

	assert.Equal(t, "noreply@example.com", m.From.Address)
	assert.Equal(t, "Directory", m.From.Name)
	assert.Equal(t, "Hello", m.Subject)
	require.Len(t, m.Personalizations, 1)
	require.Len(t, m.Personalizations[0].To, 1)
	assert.Equal(t, "a@example.com", m.Personalizations[0].To[0].Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
	assert.Equal(t, "invitation", m.CustomArgs["template"])
}

func TestSendEmailStatus(t *testing.T) {
	ok := &fakeClient{status: 202}
	require.NoError(t, NewProvider(ok).SendEmail(context.Background(), msg))
	assert.NotNil(t, ok.sent)

	rejected := &fakeClient{status: 401}
	err := NewProvider(rejected).SendEmail(context.Background(), msg)
	assert.True(t, errx.HasCode(err, ErrRejected))
}
