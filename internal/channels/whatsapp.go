package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"convoflow/internal/models"

	"github.com/rs/zerolog"
)

// VerifyHandshake answers the webhook subscription challenge. It returns the challenge to
// echo back when mode is "subscribe" and the token matches the configured one.
func VerifyHandshake(mode, token, challenge, expected string) (string, bool) {
	if mode != "subscribe" || expected == "" || token != expected {
		return "", false
	}
	return challenge, true
}

// VerifySignature checks an X-Hub-Signature-256 header ("sha256=<hex hmac>") against the
// raw request body signed with the app secret.
func VerifySignature(body []byte, header, appSecret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok || appSecret == "" {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

type waWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string  `json:"field"`
			Value waValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type waMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Context *struct {
		ID string `json:"id"`
	} `json:"context"`
	Image    *waMedia `json:"image"`
	Video    *waMedia `json:"video"`
	Document *waMedia `json:"document"`
	Button   *struct {
		Text string `json:"text"`
	} `json:"button"`
}

type waMedia struct {
	Caption string `json:"caption"`
}

// WebhookBatch is the result of parsing one webhook delivery
type WebhookBatch struct {
	Messages []Inbound
	// Errors holds one ErrMalformedPayload per record that was skipped
	Errors []error
	// Skipped counts non-message records such as delivery statuses
	Skipped int
}

// ParseWhatsAppWebhook parses a Cloud API webhook body. Only an unreadable envelope fails the
// whole delivery; a bad message record is reported in the batch and the rest still parse.
func ParseWhatsAppWebhook(body []byte) (*WebhookBatch, error) {
	var hook waWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, malformed("whatsapp webhook: %v", err)
	}

	batch := &WebhookBatch{}
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			batch.Skipped += len(change.Value.Statuses)
			for i, raw := range change.Value.Messages {
				msg, err := parseWhatsAppMessage(raw, change.Value.Metadata.DisplayPhoneNumber)
				if err != nil {
					batch.Errors = append(batch.Errors, fmt.Errorf("entry %s message %d: %w", entry.ID, i, err))
					continue
				}
				batch.Messages = append(batch.Messages, *msg)
			}
		}
	}
	return batch, nil
}

func parseWhatsAppMessage(raw json.RawMessage, businessNumber string) (*Inbound, error) {
	var m waMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, malformed("%v", err)
	}
	if m.ID == "" || m.From == "" {
		return nil, malformed("message without id or sender")
	}

	in := &Inbound{
		Channel:           models.ChannelWhatsApp,
		ProviderMessageID: m.ID,
		From:              m.From,
		To:                businessNumber,
		Body:              whatsAppBody(m),
		Headers:           models.Headers{models.HeaderMessageID: m.ID},
	}
	if m.Context != nil && m.Context.ID != "" {
		in.Headers[models.HeaderInReplyTo] = m.Context.ID
	}
	if m.Timestamp != "" {
		secs, err := strconv.ParseInt(m.Timestamp, 10, 64)
		if err != nil {
			return nil, malformed("bad timestamp %q", m.Timestamp)
		}
		in.Timestamp = secs * 1000
	}
	return in, nil
}

func whatsAppBody(m waMessage) string {
	switch {
	case m.Text != nil:
		return m.Text.Body
	case m.Button != nil:
		return m.Button.Text
	}
	for _, media := range []*waMedia{m.Image, m.Video, m.Document} {
		if media != nil && media.Caption != "" {
			return media.Caption
		}
	}
	return "[" + m.Type + "]"
}

// HTTPDoer is satisfied by *http.Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WhatsAppSender posts text messages to the Cloud API
type WhatsAppSender struct {
	client        HTTPDoer
	baseURL       string
	phoneNumberID string
	token         string
	logger        zerolog.Logger
}

// NewWhatsAppSender creates a sender; a nil client gets a 30s-timeout http.Client
func NewWhatsAppSender(client HTTPDoer, baseURL, phoneNumberID, token string, logger zerolog.Logger) *WhatsAppSender {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &WhatsAppSender{
		client:        client,
		baseURL:       strings.TrimRight(baseURL, "/"),
		phoneNumberID: phoneNumberID,
		token:         token,
		logger:        logger.With().Str("component", "whatsapp_sender").Logger(),
	}
}

type waSendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
	Context *struct {
		MessageID string `json:"message_id"`
	} `json:"context,omitempty"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// Send delivers a text message, quoting ReplyTo when set
func (s *WhatsAppSender) Send(ctx context.Context, msg Outbound) (*SendResult, error) {
	if s.token == "" || s.phoneNumberID == "" {
		return nil, fmt.Errorf("WhatsApp sender not configured")
	}

	req := waSendRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(msg.To, "+"),
		Type:             "text",
	}
	req.Text.Body = msg.Body
	if msg.ReplyTo != "" {
		req.Context = &struct {
			MessageID string `json:"message_id"`
		}{MessageID: msg.ReplyTo}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode whatsapp message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build whatsapp request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read whatsapp response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("WhatsApp API error: status %d, body: %s", resp.StatusCode, respBody)
	}

	var out waSendResponse
	if err := json.Unmarshal(respBody, &out); err != nil || len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return nil, fmt.Errorf("WhatsApp API returned no message id: %s", respBody)
	}

	id := out.Messages[0].ID
	s.logger.Debug().Str("wamid", id).Msg("Sent whatsapp message")
	return &SendResult{MessageID: id, ProviderResultID: id}, nil
}
