package threads

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"convoflow/internal/models"
)

// NormalizeContact canonicalizes an external contact identifier so the same person always
// maps to the same thread: emails are parsed and lowercased, WhatsApp numbers become +digits.
func NormalizeContact(channel models.Channel, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty contact identifier")
	}

	switch channel {
	case models.ChannelEmail:
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			return "", fmt.Errorf("invalid email contact %q: %w", raw, err)
		}
		return strings.ToLower(addr.Address), nil

	case models.ChannelWhatsApp:
		var b strings.Builder
		b.WriteByte('+')
		for _, r := range raw {
			if unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() < 4 {
			return "", fmt.Errorf("invalid whatsapp contact %q", raw)
		}
		return b.String(), nil

	default:
		return "", fmt.Errorf("unsupported channel %q", channel)
	}
}
