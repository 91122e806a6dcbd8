package channels

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"convoflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainEmail = "From: Alice <Alice@Example.com>\r\n" +
	"To: support@convoflow.test\r\n" +
	"Subject: =?UTF-8?Q?Order_=C3=A9t=C3=A9?=\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"In-Reply-To: <prev@convoflow.test>\r\n" +
	"References: <root@convoflow.test> <prev@convoflow.test>\r\n" +
	"Date: Tue, 14 Nov 2023 22:13:20 +0000\r\n" +
	"\r\n" +
	"Where is my order?\r\n"

const multipartEmail = "From: bob@example.com\r\n" +
	"To: support@convoflow.test\r\n" +
	"Subject: html only\r\n" +
	"Message-ID: <html1@example.com>\r\n" +
	"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"<p>Hello <b>there</b></p>\r\n" +
	"--XYZ--\r\n"

func TestParseMIME_Plain(t *testing.T) {
	in, err := ParseMIME(strings.NewReader(plainEmail))
	require.NoError(t, err)

	assert.Equal(t, models.ChannelEmail, in.Channel)
	assert.Equal(t, "abc123@example.com", in.ProviderMessageID)
	assert.Equal(t, "Alice <Alice@Example.com>", in.From)
	assert.Equal(t, "Order été", in.Subject)
	assert.Equal(t, "Where is my order?", in.Body)
	assert.Equal(t, int64(1700000000000), in.Timestamp)
	assert.Equal(t, "<abc123@example.com>", in.Headers.Get(models.HeaderMessageID))
	assert.Equal(t, "<prev@convoflow.test>", in.Headers.Get(models.HeaderInReplyTo))
	assert.Contains(t, in.Headers.Get(models.HeaderReferences), "<root@convoflow.test>")
}

func TestParseMIME_HTMLConverted(t *testing.T) {
	in, err := ParseMIME(strings.NewReader(multipartEmail))
	require.NoError(t, err)

	assert.Contains(t, in.Body, "Hello")
	assert.Contains(t, in.Body, "there")
	assert.NotContains(t, in.Body, "<p>")
}

func TestParseMIME_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no message id", "From: a@x.com\r\nSubject: hi\r\n\r\nbody\r\n"},
		{"no from", "Message-ID: <x@y>\r\n\r\nbody\r\n"},
		{"garbage", "this is not an email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMIME(strings.NewReader(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedPayload))
		})
	}
}

func TestParseMBOX_ContinuesPastBadMessage(t *testing.T) {
	mbox := "From alice@example.com Tue Nov 14 22:13:20 2023\n" +
		strings.ReplaceAll(plainEmail, "\r\n", "\n") +
		"From nobody Tue Nov 14 22:13:21 2023\n" +
		"Subject: missing ids\n\n>From the desk of nobody\n" +
		"From bob@example.com Tue Nov 14 22:13:22 2023\n" +
		"From: bob@example.com\nMessage-ID: <second@example.com>\n\nsecond body\n"

	var parsed []*Inbound
	var failures int
	count, err := ParseMBOX(strings.NewReader(mbox), func(msg *Inbound, parseErr error) error {
		if parseErr != nil {
			failures++
			return nil
		}
		parsed = append(parsed, msg)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, count)
	assert.Equal(t, 1, failures)
	require.Len(t, parsed, 2)
	assert.Equal(t, "abc123@example.com", parsed[0].ProviderMessageID)
	assert.Equal(t, "second body", parsed[1].Body)
}

func TestParseMBOX_CallbackStops(t *testing.T) {
	mbox := "From a\n" + strings.ReplaceAll(plainEmail, "\r\n", "\n") + "From b\n" + strings.ReplaceAll(plainEmail, "\r\n", "\n")

	stop := errors.New("stop")
	count, err := ParseMBOX(strings.NewReader(mbox), func(*Inbound, error) error { return stop })
	assert.True(t, errors.Is(err, stop))
	assert.Equal(t, 1, count)
}

func TestParseEMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msg.eml")
	require.NoError(t, os.WriteFile(path, []byte(plainEmail), 0o600))

	in, err := ParseEMLFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123@example.com", in.ProviderMessageID)

	_, err = ParseEMLFile(filepath.Join(t.TempDir(), "missing.eml"))
	assert.Error(t, err)
}
