// Package channels normalizes provider payloads into canonical inbound messages and sends
// outbound messages through the provider APIs.
package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"convoflow/internal/models"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// ErrMalformedPayload marks a single provider record that could not be understood
var ErrMalformedPayload = errors.New("malformed payload")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}

// Inbound is a provider message normalized to the canonical shape
type Inbound struct {
	Channel           models.Channel
	ProviderMessageID string
	From              string // raw contact identifier, normalized later by the thread registry
	To                string
	Subject           string
	Body              string
	Headers           models.Headers
	Timestamp         int64 // unix millis; zero means time of receipt
}

// Outbound is one message handed to a provider
type Outbound struct {
	To      string
	Subject string
	Body    string
	// ReplyTo is the provider id being answered; empty sends a fresh message
	ReplyTo string
}

// SendResult carries what the provider told us about a sent message
type SendResult struct {
	MessageID        string // Message-ID we stamped (email) or the provider id (WhatsApp)
	ProviderResultID string
}

// Sender delivers outbound messages for one channel
type Sender interface {
	Send(ctx context.Context, msg Outbound) (*SendResult, error)
}

// htmlToText renders HTML bodies as markdown-flavoured plain text
func htmlToText(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(md)
}

// cleanMessageID removes < and > from Message-IDs
func cleanMessageID(msgID string) string {
	msgID = strings.TrimSpace(msgID)
	msgID = strings.TrimPrefix(msgID, "<")
	msgID = strings.TrimSuffix(msgID, ">")
	return msgID
}
