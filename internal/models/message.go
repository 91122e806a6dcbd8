package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Channel is the transport a message travelled over
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid reports whether c is a supported channel
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelWhatsApp
}

// Direction is incoming (from the contact) or outgoing (from the platform user)
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Header keys carrying provider threading metadata
const (
	HeaderMessageID        = "Message-ID"
	HeaderInReplyTo        = "In-Reply-To"
	HeaderReferences       = "References"
	HeaderProviderResultID = "X-Provider-Result-Id"
)

// Headers is an opaque provider header map, stored as JSON
type Headers map[string]string

// Get looks a header up case-insensitively
func (h Headers) Get(key string) string {
	if v, ok := h[key]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Value implements driver.Valuer
func (h Headers) Value() (driver.Value, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(h))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (h *Headers) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = Headers{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported headers column type %T", src)
	}
	if len(raw) == 0 {
		*h = Headers{}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to decode headers: %w", err)
	}
	*h = m
	return nil
}

// Message is one entry of a thread's append-only log. Immutable once written
// apart from the unread flag.
type Message struct {
	ThreadID          string    `db:"thread_id" json:"thread_id"`
	Timestamp         int64     `db:"ts" json:"timestamp"` // unix millis, unique within a thread
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	Channel           Channel   `db:"channel" json:"channel"`
	Direction         Direction `db:"direction" json:"direction"`
	Body              string    `db:"body" json:"body"`
	Subject           string    `db:"subject" json:"subject,omitempty"`
	From              string    `db:"from_addr" json:"from,omitempty"`
	To                string    `db:"to_addr" json:"to,omitempty"`
	Headers           Headers   `db:"headers" json:"headers,omitempty"`
	OwnerUserID       string    `db:"owner_user_id" json:"owner_user_id"`
	Unread            bool      `db:"unread" json:"unread"`
}

// Thread (a.k.a. flow) is the conversation bucket between one platform user and one external contact
type Thread struct {
	ThreadID          string   `db:"thread_id" json:"thread_id"`
	OwnerUserID       string   `db:"owner_user_id" json:"owner_user_id"`
	ContactIdentifier string   `db:"contact_identifier" json:"contact_identifier"`
	Channel           Channel  `db:"channel" json:"channel"`
	MessageCount      int      `db:"message_count" json:"message_count"`
	LastMessageAt     int64    `db:"last_message_at" json:"last_message_at"`
	CreatedAt         int64    `db:"created_at" json:"created_at"`
	Participants      []string `db:"-" json:"participants,omitempty"`
}
