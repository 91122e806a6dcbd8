package channels

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"convoflow/internal/models"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInboundEmail_ParsedFields(t *testing.T) {
	form := url.Values{
		"from":    {"Carol <carol@example.com>"},
		"to":      {"support@convoflow.test"},
		"subject": {"Refund"},
		"text":    {"  please refund  "},
		"html":    {"<p>please refund</p>"},
		"headers": {"Message-ID: <r1@example.com>\nIn-Reply-To: <out1@convoflow.test>\nFrom: ignored@example.com\n"},
	}

	in, err := ParseInboundEmail(form)
	require.NoError(t, err)

	assert.Equal(t, "r1@example.com", in.ProviderMessageID)
	assert.Equal(t, "Carol <carol@example.com>", in.From)
	assert.Equal(t, "Refund", in.Subject)
	assert.Equal(t, "please refund", in.Body)
	assert.Equal(t, "<out1@convoflow.test>", in.Headers.Get(models.HeaderInReplyTo))
}

func TestParseInboundEmail_HTMLOnly(t *testing.T) {
	form := url.Values{
		"from":    {"carol@example.com"},
		"html":    {"<div>Hi <i>team</i></div>"},
		"headers": {"Message-ID: <r2@example.com>"},
	}

	in, err := ParseInboundEmail(form)
	require.NoError(t, err)
	assert.Contains(t, in.Body, "team")
	assert.NotContains(t, in.Body, "<div>")
}

func TestParseInboundEmail_RawMIME(t *testing.T) {
	in, err := ParseInboundEmail(url.Values{"email": {plainEmail}})
	require.NoError(t, err)
	assert.Equal(t, "abc123@example.com", in.ProviderMessageID)
}

func TestParseInboundEmail_MissingMessageID(t *testing.T) {
	_, err := ParseInboundEmail(url.Values{"from": {"carol@example.com"}, "text": {"hi"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPayload))
}

type fakeMailClient struct {
	sent     *sgmail.SGMailV3
	response *rest.Response
	err      error
}

func (f *fakeMailClient) SendWithContext(_ context.Context, m *sgmail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	return f.response, f.err
}

func TestSendGridSender_Send(t *testing.T) {
	client := &fakeMailClient{response: &rest.Response{
		StatusCode: 202,
		Headers:    map[string][]string{"X-Message-Id": {"sg-abc"}},
	}}
	sender := newSendGridSender(client, "support@convoflow.test", "Support", zerolog.Nop())

	res, err := sender.Send(context.Background(), Outbound{
		To: "carol@example.com", Subject: "Re: Refund", Body: "done", ReplyTo: "<r1@example.com>",
	})
	require.NoError(t, err)

	assert.Equal(t, "sg-abc", res.ProviderResultID)
	assert.Regexp(t, `^<[0-9a-f-]{36}@convoflow\.test>$`, res.MessageID)
	require.NotNil(t, client.sent)
	assert.Equal(t, "Re: Refund", client.sent.Subject)
	assert.Equal(t, "<r1@example.com>", client.sent.Headers[models.HeaderInReplyTo])
	assert.Equal(t, "<r1@example.com>", client.sent.Headers[models.HeaderReferences])
	assert.Equal(t, res.MessageID, client.sent.Headers[models.HeaderMessageID])
}

func TestSendGridSender_FreshMessageHasNoReplyHeaders(t *testing.T) {
	client := &fakeMailClient{response: &rest.Response{StatusCode: 202}}
	sender := newSendGridSender(client, "support@convoflow.test", "Support", zerolog.Nop())

	res, err := sender.Send(context.Background(), Outbound{To: "carol@example.com", Subject: "Hello", Body: "hi"})
	require.NoError(t, err)
	assert.Empty(t, res.ProviderResultID)
	_, hasReply := client.sent.Headers[models.HeaderInReplyTo]
	assert.False(t, hasReply)
}

func TestSendGridSender_Errors(t *testing.T) {
	tests := []struct {
		name    string
		sender  *SendGridSender
		wantErr string
	}{
		{
			name:    "no api key",
			sender:  NewSendGridSender("", "support@convoflow.test", "Support", zerolog.Nop()),
			wantErr: "API key not configured",
		},
		{
			name:    "no from address",
			sender:  newSendGridSender(&fakeMailClient{}, "", "Support", zerolog.Nop()),
			wantErr: "from address not configured",
		},
		{
			name:    "transport error",
			sender:  newSendGridSender(&fakeMailClient{err: errors.New("dial tcp")}, "s@c.test", "", zerolog.Nop()),
			wantErr: "failed to send email",
		},
		{
			name: "api error",
			sender: newSendGridSender(&fakeMailClient{response: &rest.Response{StatusCode: 401, Body: "unauthorized"}},
				"s@c.test", "", zerolog.Nop()),
			wantErr: "SendGrid API error: status 401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.sender.Send(context.Background(), Outbound{To: "x@y.z", Body: "b"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
