package notifxses

import (
	"context"
	"errors"
	"testing"

	"github.com/Abraxas-365/facilitydir/pkg/errx"
	"github.com/Abraxas-365/facilitydir/pkg/notifx"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("m-1")}, nil
}

func TestSendEmailBuildsInput(t *testing.T) {
	api := &fakeSES{}
	p := NewSESProvider(api)

	err := p.SendEmail(context.Background(), notifx.EmailMessage{
		From:     "noreply@example.com",
		FromName: "Directory",
		To:       []string{"a@example.com"},
		Subject:  "Hello",
		TextBody: "text",
		Tags:     map[string]string{"template": "invitation"},
	})
	require.NoError(t, err)

	in := api.input
	assert.Equal(t, "Directory <noreply@example.com>", aws.ToString(in.Source))
	assert.Equal(t, []string{"a@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Hello", aws.ToString(in.Message.Subject.Data))
	assert.Equal(t, "text", aws.ToString(in.Message.Body.Text.Data))
	assert.Nil(t, in.Message.Body.Html)
	require.Len(t, in.Tags, 1)
	assert.Equal(t, "invitation", aws.ToString(in.Tags[0].Value))
}

func TestSendEmailWrapsFailure(t *testing.T) {
	p := NewSESProvider(&fakeSES{err: errors.New("throttled")})
	err := p.SendEmail(context.Background(), notifx.EmailMessage{From: "a@example.com", To: []string{"b@example.com"}, Subject: "x"})
	assert.True(t, errx.HasCode(err, ErrSendFailed))
}
