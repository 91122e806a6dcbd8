package channels

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"convoflow/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ParseInboundEmail normalizes a SendGrid Inbound Parse post. When the webhook is set to
// post the raw message the "email" field is parsed as MIME; otherwise the parsed fields
// (from, to, subject, text, html, headers) are used.
func ParseInboundEmail(form url.Values) (*Inbound, error) {
	if raw := form.Get("email"); raw != "" {
		return ParseMIME(strings.NewReader(raw))
	}

	rawHeaders := strings.TrimRight(form.Get("headers"), "\r\n")
	header := mail.Header{}
	if rawHeaders != "" {
		msg, err := mail.ReadMessage(strings.NewReader(rawHeaders + "\r\n\r\n"))
		if err != nil {
			return nil, malformed("unreadable headers: %v", err)
		}
		header = msg.Header
	}
	// parsed fields win over the header block for display values
	for key, field := range map[string]string{"From": "from", "To": "to", "Subject": "subject"} {
		if v := form.Get(field); v != "" {
			header[key] = []string{v}
		}
	}

	return inboundFromHeader(header, func(in *Inbound) error {
		switch {
		case strings.TrimSpace(form.Get("text")) != "":
			in.Body = strings.TrimSpace(form.Get("text"))
		case form.Get("html") != "":
			in.Body = htmlToText(form.Get("html"))
		}
		return nil
	})
}

// mailClient is the part of the SendGrid client the sender uses
type mailClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends email through SendGrid v3
type SendGridSender struct {
	client    mailClient
	fromEmail string
	fromName  string
	logger    zerolog.Logger
}

// NewSendGridSender creates an email sender
func NewSendGridSender(apiKey, fromEmail, fromName string, logger zerolog.Logger) *SendGridSender {
	var client mailClient
	if apiKey != "" {
		client = sendgrid.NewSendClient(apiKey)
	}
	return newSendGridSender(client, fromEmail, fromName, logger)
}

func newSendGridSender(client mailClient, fromEmail, fromName string, logger zerolog.Logger) *SendGridSender {
	return &SendGridSender{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		logger:    logger.With().Str("component", "sendgrid_sender").Logger(),
	}
}

// Send delivers the message. Replies carry In-Reply-To/References so mail clients thread them.
func (s *SendGridSender) Send(ctx context.Context, msg Outbound) (*SendResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("SendGrid API key not configured")
	}
	if s.fromEmail == "" {
		return nil, fmt.Errorf("SendGrid from address not configured")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(s.fromEmail))

	from := sgmail.NewEmail(s.fromName, s.fromEmail)
	to := sgmail.NewEmail("", msg.To)
	message := sgmail.NewV3MailInit(from, msg.Subject, to, sgmail.NewContent("text/plain", msg.Body))
	message.SetHeader(models.HeaderMessageID, messageID)
	if msg.ReplyTo != "" {
		ref := "<" + cleanMessageID(msg.ReplyTo) + ">"
		message.SetHeader(models.HeaderInReplyTo, ref)
		message.SetHeader(models.HeaderReferences, ref)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		return nil, fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	result := &SendResult{MessageID: messageID}
	for key, values := range response.Headers {
		if strings.EqualFold(key, "X-Message-Id") && len(values) > 0 {
			result.ProviderResultID = values[0]
		}
	}

	s.logger.Debug().
		Str("message_id", messageID).
		Str("result_id", result.ProviderResultID).
		Bool("reply", msg.ReplyTo != "").
		Msg("Sent email")
	return result, nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
