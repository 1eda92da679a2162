package outbound

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/sandesh-mail/sandesh/helpers"
	"github.com/sandesh-mail/sandesh/logger"
)

// Transport relays a composed message to the next hop. The cc list
// travels as separate envelope recipients but a distinct header, which
// is why it is not folded into to here.
type Transport interface {
	Send(from string, to, cc []string, subject, body string) error
}

// SMTPTransport speaks SMTP to a configured smarthost.
type SMTPTransport struct {
	Addr        string // host:port of the smarthost
	Hostname    string // HELO name
	Username    string // optional, enables AUTH PLAIN
	Password    string
	UseTLS      bool
	UseStartTLS bool
	TLSVerify   bool
}

func (t *SMTPTransport) Send(from string, to, cc []string, subject, body string) error {
	if t.Addr == "" {
		return fmt.Errorf("outbound smarthost not configured")
	}

	raw, err := composeMessage(from, to, cc, subject, body)
	if err != nil {
		return fmt.Errorf("failed to compose message: %w", err)
	}

	c, err := t.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if t.Hostname != "" {
		if err := c.Hello(t.Hostname); err != nil {
			return fmt.Errorf("HELO failed: %w", err)
		}
	}

	if t.Username != "" {
		auth := sasl.NewPlainClient("", t.Username, t.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	_, fromAddr := helpers.ParseSender(from)
	if err := c.Mail(fromAddr, nil); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range append(append([]string{}, to...), cc...) {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The message was already accepted, a failed QUIT is not fatal.
		logger.Warnf("outbound: failed to send QUIT to %s: %v", t.Addr, err)
	}
	return nil
}

func (t *SMTPTransport) dial() (*smtp.Client, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Renegotiation:      tls.RenegotiateNever,
		InsecureSkipVerify: !t.TLSVerify,
	}

	switch {
	case t.UseStartTLS:
		c, err := smtp.DialStartTLS(t.Addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s with STARTTLS: %w", t.Addr, err)
		}
		return c, nil
	case t.UseTLS:
		c, err := smtp.DialTLS(t.Addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s with TLS: %w", t.Addr, err)
		}
		return c, nil
	default:
		c, err := smtp.Dial(t.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", t.Addr, err)
		}
		return c, nil
	}
}

func composeMessage(from string, to, cc []string, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var header message.Header
	header.Set("From", from)
	header.Set("To", strings.Join(to, ", "))
	if len(cc) > 0 {
		header.Set("Cc", strings.Join(cc, ", "))
	}
	header.Set("Subject", subject)
	header.Set("Date", time.Now().Format(time.RFC1123Z))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "text/plain; charset=utf-8")

	w, err := message.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
