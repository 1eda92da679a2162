// Package delivery routes an accepted inbound message to local recipients.
// Each recipient is handled independently so that one bad address never
// blocks delivery to the rest of the envelope.
package delivery

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
	"github.com/sandesh-mail/sandesh/pkg/retry"
)

// Store is the slice of the database the router needs. *db.Database
// satisfies it.
type Store interface {
	GetAccountByUsername(ctx context.Context, username string) (*db.Account, error)
	GetOrCreateMailbox(ctx context.Context, accountID int64, name string) (*db.Mailbox, error)
	InsertMessage(ctx context.Context, opts *db.InsertMessageOptions) (int64, error)
}

// Status tags the outcome of a single recipient.
type Status string

const (
	StatusDelivered          Status = "delivered"
	StatusSkippedMalformed   Status = "skipped_malformed"
	StatusSkippedUnknownUser Status = "skipped_unknown_user"
	StatusFailed             Status = "failed"
)

// Outcome records what happened for one envelope recipient.
type Outcome struct {
	Recipient string
	Status    Status
	MessageID int64 // set only when Status is StatusDelivered
	Err       error // set only when Status is StatusFailed
}

// Request carries everything the router needs for one message.
type Request struct {
	Sender     string // raw sender, display-name form allowed
	Recipients []string
	Subject    string
	Body       string
	Date       time.Time // zero means now
}

type Router struct {
	store       Store
	retryConfig retry.BackoffConfig
}

func NewRouter(store Store) *Router {
	cfg := retry.DefaultBackoffConfig()
	cfg.OperationName = "insert message"
	return &Router{store: store, retryConfig: cfg}
}

// Deliver fans the message out to every envelope recipient and reports a
// per-recipient outcome. Malformed addresses and unknown local users are
// skipped, storage failures surface as StatusFailed; the remaining
// recipients are always attempted regardless.
func (r *Router) Deliver(ctx context.Context, req *Request) []Outcome {
	displayName, senderEmail := helpers.ParseSender(req.Sender)

	date := req.Date
	if date.IsZero() {
		date = time.Now()
	}

	outcomes := make([]Outcome, 0, len(req.Recipients))
	for _, recipient := range req.Recipients {
		outcome := r.deliverOne(ctx, req, recipient, displayName, senderEmail, date)
		metrics.DeliveryOutcomes.WithLabelValues(string(outcome.Status)).Inc()
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (r *Router) deliverOne(ctx context.Context, req *Request, recipient, displayName, senderEmail string, date time.Time) Outcome {
	localPart, _, ok := helpers.SplitEmailAddress(recipient)
	if !ok {
		logger.Infof("delivery: skipping malformed recipient %q", recipient)
		return Outcome{Recipient: recipient, Status: StatusSkippedMalformed}
	}

	account, err := r.store.GetAccountByUsername(ctx, localPart)
	if err != nil {
		if errors.Is(err, consts.ErrUserNotFound) {
			logger.Infof("delivery: no local user for %q", recipient)
			return Outcome{Recipient: recipient, Status: StatusSkippedUnknownUser}
		}
		return Outcome{Recipient: recipient, Status: StatusFailed, Err: fmt.Errorf("lookup %q: %w", localPart, err)}
	}

	inbox, err := r.store.GetOrCreateMailbox(ctx, account.ID, consts.MailboxInbox)
	if err != nil {
		return Outcome{Recipient: recipient, Status: StatusFailed, Err: fmt.Errorf("mailbox for %q: %w", localPart, err)}
	}

	opts := &db.InsertMessageOptions{
		AccountID:         account.ID,
		MailboxID:         inbox.ID,
		Sender:            req.Sender,
		SenderDisplayName: displayName,
		SenderEmail:       senderEmail,
		Recipients:        req.Recipients,
		Subject:           req.Subject,
		Body:              req.Body,
		ContentHash:       helpers.HashContent([]byte(req.Body)),
		IsRead:            false,
		InternalDate:      date,
	}

	messageID, err := r.insertWithRetry(ctx, opts)
	if err != nil {
		logger.Errorf("delivery: storing message for %q failed: %v", recipient, err)
		return Outcome{Recipient: recipient, Status: StatusFailed, Err: fmt.Errorf("%w: %v", consts.ErrDeliveryFailed, err)}
	}

	return Outcome{Recipient: recipient, Status: StatusDelivered, MessageID: messageID}
}

// insertWithRetry retries only transient contention; any other database
// error stops immediately.
func (r *Router) insertWithRetry(ctx context.Context, opts *db.InsertMessageOptions) (int64, error) {
	var messageID int64
	err := retry.WithRetry(ctx, func() error {
		id, err := r.store.InsertMessage(ctx, opts)
		if err != nil {
			if errors.Is(err, consts.ErrDBBusy) {
				metrics.StorageRetries.WithLabelValues("insert_message").Inc()
				return err
			}
			return retry.Stop(err)
		}
		messageID = id
		return nil
	}, r.retryConfig)
	if err != nil {
		return 0, err
	}
	return messageID, nil
}

// Delivered reports whether at least one recipient accepted the message.
func Delivered(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status == StatusDelivered {
			return true
		}
	}
	return false
}
