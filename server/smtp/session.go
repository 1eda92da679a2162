package smtp

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/sandesh-mail/sandesh/pkg/metrics"
	"github.com/sandesh-mail/sandesh/server/delivery"
)

// Session handles one inbound transfer connection. Connections are
// independent; the only shared state is the backend's router and rate
// limiter.
type Session struct {
	backend  *Backend
	remoteIP string

	sender     string
	recipients []string
}

func (s *Session) log(format string, args ...any) {
	s.backend.logf("SMTP [%s] %s", s.remoteIP, fmt.Sprintf(format, args...))
}

func (s *Session) Mail(from string, _ *smtp.MailOptions) error {
	start := time.Now()
	success := false
	defer func() {
		status := "failure"
		if success {
			status = "success"
		}
		metrics.CommandsTotal.WithLabelValues("smtp", "MAIL", status).Inc()
		metrics.CommandDuration.WithLabelValues("smtp", "MAIL").Observe(time.Since(start).Seconds())
	}()

	if s.remoteIP != "" && !s.backend.limiter.Allowed("mail:"+s.remoteIP, s.backend.mailRateLimit, s.backend.mailRateWindow) {
		metrics.RateLimitRejections.WithLabelValues("inbound_mail").Inc()
		s.log("MAIL FROM rate limited")
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 7, 0},
			Message:      "Too many messages, try again later",
		}
	}

	s.sender = from
	s.recipients = nil

	success = true
	s.log("mail from=%s accepted", from)
	return nil
}

func (s *Session) Rcpt(to string, _ *smtp.RcptOptions) error {
	start := time.Now()
	success := false
	defer func() {
		status := "failure"
		if success {
			status = "success"
		}
		metrics.CommandsTotal.WithLabelValues("smtp", "RCPT", status).Inc()
		metrics.CommandDuration.WithLabelValues("smtp", "RCPT").Observe(time.Since(start).Seconds())
	}()

	if s.backend.maxRecipients > 0 && len(s.recipients) >= s.backend.maxRecipients {
		s.log("recipient limit of %d reached", s.backend.maxRecipients)
		return &smtp.SMTPError{
			Code:         452,
			EnhancedCode: smtp.EnhancedCode{4, 5, 3},
			Message:      "Too many recipients",
		}
	}

	// Recipient validity is decided at delivery time so that one bad
	// address never blocks the rest of the envelope.
	s.recipients = append(s.recipients, to)

	success = true
	s.log("recipient accepted: %s", to)
	return nil
}

func (s *Session) Data(r io.Reader) error {
	start := time.Now()
	success := false
	defer func() {
		status := "failure"
		if success {
			status = "success"
		}
		metrics.CommandsTotal.WithLabelValues("smtp", "DATA", status).Inc()
		metrics.CommandDuration.WithLabelValues("smtp", "DATA").Observe(time.Since(start).Seconds())
	}()

	if s.sender == "" || len(s.recipients) == 0 {
		s.log("DATA without MAIL FROM or RCPT TO")
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "Bad sequence of commands (missing MAIL FROM or RCPT TO)",
		}
	}

	var buf bytes.Buffer
	reader := r
	if s.backend.maxMessageSize > 0 {
		// One extra byte to detect when the limit is exceeded.
		reader = io.LimitReader(r, s.backend.maxMessageSize+1)
	}
	if _, err := io.Copy(&buf, reader); err != nil {
		s.log("failed to read message: %v", err)
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Failed to read message",
		}
	}

	if s.backend.maxMessageSize > 0 && int64(buf.Len()) > s.backend.maxMessageSize {
		s.log("message exceeds limit of %d bytes", s.backend.maxMessageSize)
		return &smtp.SMTPError{
			Code:         552,
			EnhancedCode: smtp.EnhancedCode{5, 3, 4},
			Message:      fmt.Sprintf("Message exceeds maximum allowed size of %d bytes", s.backend.maxMessageSize),
		}
	}

	metrics.MessageSizeBytes.WithLabelValues("smtp").Observe(float64(buf.Len()))

	subject, body := ParseMessage(buf.Bytes())

	outcomes := s.backend.router.Deliver(s.backend.appCtx, &delivery.Request{
		Sender:     s.sender,
		Recipients: s.recipients,
		Subject:    subject,
		Body:       body,
	})

	for _, o := range outcomes {
		s.log("recipient %s: %s", o.Recipient, o.Status)
	}

	// Per-recipient skips never fail the transfer. Only a message that
	// reached nobody because storage failed is bounced, and with a code
	// that invites the originating side to retry the whole transfer.
	if anyFailed(outcomes) && !delivery.Delivered(outcomes) {
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{4, 4, 1},
			Message:      "Temporary delivery failure, try again later",
		}
	}

	success = true
	return nil
}

func anyFailed(outcomes []delivery.Outcome) bool {
	for _, o := range outcomes {
		if o.Status == delivery.StatusFailed {
			return true
		}
	}
	return false
}

func (s *Session) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *Session) Logout() error {
	s.backend.activeConnections.Add(-1)
	metrics.ConnectionsCurrent.WithLabelValues("smtp").Dec()
	return nil
}
