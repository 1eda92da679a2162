// Package outbound implements the send path: format the sender
// identity from the current namespace, persist the Sent copy, then hand
// the message to the transport. Persistence always happens before the
// transport attempt so a relay outage can never lose the user's own
// record of what they sent.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandesh-mail/sandesh/consts"
	"github.com/sandesh-mail/sandesh/db"
	"github.com/sandesh-mail/sandesh/helpers"
	"github.com/sandesh-mail/sandesh/logger"
	"github.com/sandesh-mail/sandesh/pkg/metrics"
	"github.com/sandesh-mail/sandesh/pkg/ratelimit"
	"github.com/sandesh-mail/sandesh/pkg/retry"
)

// SignatureDelimiter separates the message body from an appended
// signature, in the conventional mail style.
const SignatureDelimiter = "\n\n--\n"

// Store is the slice of the database the send path needs. *db.Database
// satisfies it.
type Store interface {
	GetOrCreateMailbox(ctx context.Context, accountID int64, name string) (*db.Mailbox, error)
	InsertMessage(ctx context.Context, opts *db.InsertMessageOptions) (int64, error)
}

// NamespaceSource yields the current namespace. It is read fresh on
// every send so a runtime namespace change applies to the next message
// without a restart. *db.SystemSettings satisfies it.
type NamespaceSource interface {
	Namespace(ctx context.Context) (string, error)
}

type Sender struct {
	store     Store
	namespace NamespaceSource
	transport Transport

	limiter        *ratelimit.Limiter
	sendRateLimit  int
	sendRateWindow time.Duration

	retryConfig retry.BackoffConfig
}

type SenderOptions struct {
	SendRateLimit  int // messages per account per window, 0 disables
	SendRateWindow time.Duration
}

func NewSender(store Store, namespace NamespaceSource, transport Transport, limiter *ratelimit.Limiter, options SenderOptions) *Sender {
	cfg := retry.DefaultBackoffConfig()
	cfg.OperationName = "persist sent copy"
	return &Sender{
		store:          store,
		namespace:      namespace,
		transport:      transport,
		limiter:        limiter,
		sendRateLimit:  options.SendRateLimit,
		sendRateWindow: options.SendRateWindow,
		retryConfig:    cfg,
	}
}

// Request carries one outbound message on behalf of an account.
type Request struct {
	Account          *db.Account
	To               []string
	Cc               []string
	Subject          string
	Body             string
	IncludeSignature bool
}

// Send formats the sender identity, persists the Sent copy and relays
// the message. A transport failure after a successful persist is
// reported to the caller but the Sent record stays: the user's own copy
// is authoritative even when transmission failed.
func (s *Sender) Send(ctx context.Context, req *Request) error {
	account := req.Account
	if account == nil {
		return fmt.Errorf("send request without account")
	}
	if len(req.To) == 0 {
		return fmt.Errorf("send request without recipients")
	}

	if s.limiter != nil && !s.limiter.Allowed("send:"+account.Username, s.sendRateLimit, s.sendRateWindow) {
		metrics.RateLimitRejections.WithLabelValues("outbound_send").Inc()
		metrics.SendAttempts.WithLabelValues("rate_limited").Inc()
		return fmt.Errorf("%w: %d messages per %s", consts.ErrRateLimited, s.sendRateLimit, s.sendRateWindow)
	}

	namespace, err := s.namespace.Namespace(ctx)
	if err != nil {
		metrics.SendAttempts.WithLabelValues("failure").Inc()
		return fmt.Errorf("failed to resolve namespace: %w", err)
	}

	from := helpers.FormatSender(account.DisplayName, account.Username, namespace)
	fromAddr := helpers.JoinAddress(account.Username, namespace)

	body := req.Body
	if req.IncludeSignature && account.Signature != "" {
		body += SignatureDelimiter + account.Signature
	}

	if err := s.persistSentCopy(ctx, account, from, fromAddr, body, req); err != nil {
		metrics.SendAttempts.WithLabelValues("failure").Inc()
		return err
	}

	if err := s.transport.Send(from, req.To, req.Cc, req.Subject, body); err != nil {
		logger.Errorf("outbound: transport failed for %s: %v", fromAddr, err)
		metrics.SendAttempts.WithLabelValues("transport_failure").Inc()
		return fmt.Errorf("%w: %v", consts.ErrTransportUnavailable, err)
	}

	metrics.SendAttempts.WithLabelValues("success").Inc()
	return nil
}

func (s *Sender) persistSentCopy(ctx context.Context, account *db.Account, from, fromAddr, body string, req *Request) error {
	sent, err := s.store.GetOrCreateMailbox(ctx, account.ID, consts.MailboxSent)
	if err != nil {
		return fmt.Errorf("failed to open Sent mailbox: %w", err)
	}

	recipients := append(append([]string{}, req.To...), req.Cc...)
	opts := &db.InsertMessageOptions{
		AccountID:         account.ID,
		MailboxID:         sent.ID,
		Sender:            from,
		SenderDisplayName: account.DisplayName,
		SenderEmail:       fromAddr,
		Recipients:        recipients,
		Subject:           req.Subject,
		Body:              body,
		ContentHash:       helpers.HashContent([]byte(body)),
		IsRead:            true, // sent messages are never unread to their author
		InternalDate:      time.Now(),
	}

	err = retry.WithRetry(ctx, func() error {
		if _, err := s.store.InsertMessage(ctx, opts); err != nil {
			if errors.Is(err, consts.ErrDBBusy) {
				metrics.StorageRetries.WithLabelValues("persist_sent_copy").Inc()
				return err
			}
			return retry.Stop(err)
		}
		return nil
	}, s.retryConfig)
	if err != nil {
		return fmt.Errorf("%w: persisting sent copy: %v", consts.ErrDeliveryFailed, err)
	}
	return nil
}
