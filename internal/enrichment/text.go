package enrichment

import (
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/text/unicode/norm"
)

var htmlMarkers = []string{"</", "<br", "<p>", "<div", "<html", "<table", "<span"}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range htmlMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// plainText strips HTML and NFC-normalizes s
func plainText(s string) string {
	if looksLikeHTML(s) {
		if md, err := htmltomarkdown.ConvertString(s); err == nil {
			s = md
		}
	}
	return strings.TrimSpace(norm.NFC.String(s))
}

// ExtractText joins subject and body as plain text, truncated to maxBytes without splitting
// a UTF-8 sequence. maxBytes <= 0 means no limit. Whitespace-only input yields "".
func ExtractText(subject, body string, maxBytes int) string {
	var parts []string
	for _, p := range []string{plainText(subject), plainText(body)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return TruncateBytes(strings.Join(parts, "\n\n"), maxBytes)
}

// TruncateBytes cuts s to at most maxBytes, backing off to a rune boundary
func TruncateBytes(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
