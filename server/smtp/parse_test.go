package smtp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSimpleMessage(t *testing.T) {
	raw := "Subject: Hello\r\n" +
		"From: bob@example.com\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Hi Alice, how are you?\r\n"

	subject, body := ParseMessage([]byte(raw))
	assert.Equal(t, "Hello", subject)
	assert.Contains(t, body, "Hi Alice, how are you?")
}

func TestParseMissingSubject(t *testing.T) {
	raw := "From: bob@example.com\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"no subject here\r\n"

	subject, body := ParseMessage([]byte(raw))
	assert.Empty(t, subject)
	assert.Contains(t, body, "no subject here")
}

func TestParseEncodedSubject(t *testing.T) {
	raw := "Subject: =?utf-8?q?Caf=C3=A9_menu?=\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body\r\n"

	subject, _ := ParseMessage([]byte(raw))
	assert.Equal(t, "Café menu", subject)
}

func TestParseMultipartPicksFirstPlainPart(t *testing.T) {
	raw := "Subject: Multi\r\n" +
		"Content-Type: multipart/alternative; boundary=BOUNDARY\r\n" +
		"\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"second plain part, must not win\r\n" +
		"--BOUNDARY--\r\n"

	subject, body := ParseMessage([]byte(raw))
	assert.Equal(t, "Multi", subject)
	assert.Contains(t, body, "plain version")
	assert.NotContains(t, body, "html version")
	assert.NotContains(t, body, "second plain part")
}

func TestParseNestedMultipart(t *testing.T) {
	raw := "Subject: Nested\r\n" +
		"Content-Type: multipart/mixed; boundary=OUTER\r\n" +
		"\r\n" +
		"--OUTER\r\n" +
		"Content-Type: multipart/alternative; boundary=INNER\r\n" +
		"\r\n" +
		"--INNER\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"inner plain\r\n" +
		"--INNER--\r\n" +
		"--OUTER--\r\n"

	_, body := ParseMessage([]byte(raw))
	assert.Contains(t, body, "inner plain")
}

func TestParseHTMLOnlyFallsBackToText(t *testing.T) {
	raw := "Subject: Html\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><p>Hello <b>world</b></p></body></html>\r\n"

	_, body := ParseMessage([]byte(raw))
	assert.Contains(t, body, "Hello")
	assert.Contains(t, body, "world")
	assert.False(t, strings.Contains(body, "<p>"))
}

func TestParseUnstructuredPayloadKeptVerbatim(t *testing.T) {
	raw := "this is not a mail document at all"

	subject, body := ParseMessage([]byte(raw))
	assert.Empty(t, subject)
	assert.Equal(t, raw, body)
}
