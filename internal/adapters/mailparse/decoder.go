package mailparse

import (
	"bytes"
	"io"
	"mime"
	stdmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/support-mailer/internal/core"
	"go.uber.org/zap"
)

// Decoder turns raw message bytes into a structured record: decoded headers,
// extracted plain/HTML bodies and a normalized receive timestamp.
type Decoder struct {
	logger *zap.Logger
	dec    *mime.WordDecoder
}

// NewDecoder creates a message decoder.
func NewDecoder(logger *zap.Logger) *Decoder {
	return &Decoder{
		logger: logger,
		dec:    &mime.WordDecoder{CharsetReader: charset.Reader},
	}
}

// Decode parses a raw message blob. Header encoded-words are decoded with
// their declared charset, degrading to the raw text when the charset is
// unknown. A missing or unparseable Date header falls back to the current
// time; that is defined behavior, not an error.
func (d *Decoder) Decode(raw []byte) (*core.DecodedMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return d.decodeFallback(raw, err)
	}

	msg := &core.DecodedMessage{
		MessageID:  strings.TrimSpace(mr.Header.Get("Message-Id")),
		Sender:     d.decodeHeader(mr.Header.Get("From")),
		Subject:    d.decodeHeader(mr.Header.Get("Subject")),
		ReceivedAt: d.parseDate(mr.Header.Get("Date")),
	}

	var textParts, htmlParts []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			d.logger.Debug("Stopping body walk on part error", zap.Error(err))
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			// Attachments are skipped; only inline parts contribute.
			continue
		}
		body, err := io.ReadAll(p.Body)
		if err != nil {
			continue
		}
		ct, _, _ := mime.ParseMediaType(h.Get("Content-Type"))
		switch ct {
		case "text/html":
			htmlParts = append(htmlParts, string(body))
		default:
			textParts = append(textParts, string(body))
		}
	}

	msg.BodyText = strings.TrimSpace(strings.Join(textParts, "\n"))
	msg.BodyHTML = strings.TrimSpace(strings.Join(htmlParts, "\n"))
	return msg, nil
}

// decodeFallback covers blobs the MIME reader rejects outright: headers are
// taken from a plain header parse and the body is whatever follows the first
// blank line.
func (d *Decoder) decodeFallback(raw []byte, cause error) (*core.DecodedMessage, error) {
	parsed, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, &core.ParseError{Reason: cause.Error()}
	}

	msg := &core.DecodedMessage{
		MessageID:  strings.TrimSpace(parsed.Header.Get("Message-Id")),
		Sender:     d.decodeHeader(parsed.Header.Get("From")),
		Subject:    d.decodeHeader(parsed.Header.Get("Subject")),
		ReceivedAt: d.parseDate(parsed.Header.Get("Date")),
	}
	if body, err := io.ReadAll(parsed.Body); err == nil {
		msg.BodyText = strings.TrimSpace(string(body))
	}
	return msg, nil
}

// decodeHeader decodes RFC 2047 encoded-words with their declared charset,
// concatenating decoded and literal segments in order. Undecodable segments
// are kept as-is rather than failing.
func (d *Decoder) decodeHeader(value string) string {
	if value == "" {
		return ""
	}
	decoded, err := d.dec.DecodeHeader(value)
	if err != nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(decoded)
}

func (d *Decoder) parseDate(value string) time.Time {
	if value != "" {
		if t, err := stdmail.ParseDate(value); err == nil {
			return t.UTC()
		}
		d.logger.Debug("Unparseable Date header, using current time", zap.String("date", value))
	}
	return time.Now().UTC()
}
