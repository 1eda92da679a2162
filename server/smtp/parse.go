package smtp

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
)

// ParseMessage extracts the subject and a plain-text body from a raw
// message payload. Multipart messages yield the first text/plain part;
// an HTML-only message is converted to plain text. A payload that does
// not parse as a mail document is kept verbatim as the body so nothing
// accepted on the wire is silently dropped.
func ParseMessage(raw []byte) (subject, body string) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", string(raw)
	}

	mailHeader := mail.Header{Header: entity.Header}
	subject, _ = mailHeader.Subject()

	plaintext, htmlBody := extractTextBodies(entity)
	if plaintext == nil && htmlBody != nil {
		converted := html2text.HTML2Text(*htmlBody)
		plaintext = &converted
	}
	if plaintext == nil {
		return subject, ""
	}
	return subject, *plaintext
}

// extractTextBodies walks the MIME tree and returns the first text/plain
// and first text/html bodies it finds. A non-multipart, non-text entity
// is treated as plain text so simple payloads without headers still
// deliver.
func extractTextBodies(entity *message.Entity) (plaintext, htmlBody *string) {
	var walk func(*message.Entity)
	walk = func(e *message.Entity) {
		if plaintext != nil {
			return
		}

		mediaType, _, _ := e.Header.ContentType()
		if strings.HasPrefix(mediaType, "multipart/") {
			mr := e.MultipartReader()
			if mr == nil {
				return
			}
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					return
				}
				walk(part)
				if plaintext != nil {
					return
				}
			}
			return
		}

		content, err := io.ReadAll(e.Body)
		if err != nil {
			return
		}

		switch {
		case mediaType == "text/plain" || mediaType == "":
			s := string(content)
			plaintext = &s
		case mediaType == "text/html":
			if htmlBody == nil {
				s := string(content)
				htmlBody = &s
			}
		}
	}

	walk(entity)
	return plaintext, htmlBody
}
