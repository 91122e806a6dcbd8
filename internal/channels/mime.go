package channels

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"strings"

	"convoflow/internal/models"
)

// ParseMIME parses a raw RFC 5322 message (an .eml file, or the raw "email" field of an
// inbound parse post) into an inbound email
func ParseMIME(r io.Reader) (*Inbound, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, malformed("failed to read email message: %v", err)
	}
	return inboundFromHeader(msg.Header, func(in *Inbound) error {
		body, err := extractBody(msg)
		if err != nil {
			return malformed("failed to extract body: %v", err)
		}
		in.Body = body
		return nil
	})
}

// inboundFromHeader fills the header-derived fields then lets fill add the body
func inboundFromHeader(header mail.Header, fill func(in *Inbound) error) (*Inbound, error) {
	messageID := cleanMessageID(header.Get("Message-ID"))
	if messageID == "" {
		return nil, malformed("email without Message-ID")
	}
	from := header.Get("From")
	if from == "" {
		return nil, malformed("email %s without From", messageID)
	}

	in := &Inbound{
		Channel:           models.ChannelEmail,
		ProviderMessageID: messageID,
		From:              decodeHeader(from),
		To:                decodeHeader(header.Get("To")),
		Subject:           decodeHeader(header.Get("Subject")),
		Headers:           models.Headers{models.HeaderMessageID: header.Get("Message-ID")},
	}

	// Extract threading information
	if inReplyTo := header.Get("In-Reply-To"); inReplyTo != "" {
		in.Headers[models.HeaderInReplyTo] = inReplyTo
	}
	if references := header.Get("References"); references != "" {
		in.Headers[models.HeaderReferences] = references
	}

	if date := header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			in.Timestamp = t.UnixMilli()
		}
	}

	if err := fill(in); err != nil {
		return nil, err
	}
	return in, nil
}

// ParseEMLFile parses a single EML file
func ParseEMLFile(filename string) (*Inbound, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open EML file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	return ParseMIME(file)
}

// MBOXCallback receives each message of an mbox, or the error that message failed with.
// Returning an error stops the scan.
type MBOXCallback func(msg *Inbound, parseErr error) error

// ParseMBOX streams an mbox, handing every message to fn as soon as it is read. A message
// that fails to parse is reported to fn and does not stop the scan. Returns the number of
// messages seen.
func ParseMBOX(r io.Reader, fn MBOXCallback) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // 10MB max line

	var current bytes.Buffer
	count := 0

	flush := func() error {
		if current.Len() == 0 {
			return nil
		}
		count++
		msg, err := ParseMIME(bytes.NewReader(current.Bytes()))
		current.Reset()
		return fn(msg, err)
	}

	for scanner.Scan() {
		line := scanner.Text()

		// MBOX format: each email starts with "From " (with space)
		if strings.HasPrefix(line, "From ") {
			if err := flush(); err != nil {
				return count, err
			}
			continue
		}
		if strings.HasPrefix(line, ">From ") {
			line = line[1:]
		}

		current.WriteString(line)
		current.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("error reading MBOX: %w", err)
	}

	return count, flush()
}

// extractBody extracts the body text from an email message
func extractBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	encoding := msg.Header.Get("Content-Transfer-Encoding")
	if contentType == "" {
		return extractSinglePartBody(msg.Body, "text/plain", encoding)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fallback: read as plain text
		return extractSinglePartBody(msg.Body, "text/plain", encoding)
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipartBody(msg.Body, params["boundary"])
	}

	return extractSinglePartBody(msg.Body, mediaType, encoding)
}

// extractMultipartBody prefers text/plain parts and falls back to converted HTML
func extractMultipartBody(body io.Reader, boundary string) (string, error) {
	mr := multipart.NewReader(body, boundary)
	var textParts []string
	var htmlParts []string

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		partContentType := part.Header.Get("Content-Type")
		mediaType, params, _ := mime.ParseMediaType(partContentType)

		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			// Nested multipart (alternative inside mixed)
			if nested, err := extractMultipartBody(part, params["boundary"]); err == nil && nested != "" {
				textParts = append(textParts, nested)
			}
		case strings.HasPrefix(mediaType, "text/plain"), strings.HasPrefix(mediaType, "text/html"):
			if part.FileName() != "" {
				continue
			}
			content, err := extractSinglePartBody(part, mediaType, part.Header.Get("Content-Transfer-Encoding"))
			if err != nil {
				continue
			}
			if strings.HasPrefix(mediaType, "text/plain") {
				textParts = append(textParts, content)
			} else {
				htmlParts = append(htmlParts, content)
			}
		}
	}

	if len(textParts) > 0 {
		return strings.Join(textParts, "\n\n"), nil
	}
	return strings.Join(htmlParts, "\n\n"), nil
}

// extractSinglePartBody decodes one part; HTML parts come back converted to text
func extractSinglePartBody(body io.Reader, mediaType, transferEncoding string) (string, error) {
	reader := body

	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		reader = quotedprintable.NewReader(body)
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, body)
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	text := string(content)
	if strings.HasPrefix(mediaType, "text/html") {
		return htmlToText(text), nil
	}
	return strings.TrimSpace(text), nil
}

// decodeHeader decodes MIME encoded headers
func decodeHeader(header string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}
