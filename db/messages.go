package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandesh-mail/sandesh/consts"
	"github.com/sandesh-mail/sandesh/helpers"
)

// InsertMessageOptions carries everything needed to persist one delivered or
// sent message. The sender identity fields are captured at delivery/send time
// and are never rewritten afterwards; Sender is the legacy combined string
// and is always set.
type InsertMessageOptions struct {
	AccountID         int64
	MailboxID         int64
	Sender            string
	SenderDisplayName string // empty means unknown
	SenderEmail       string // empty means unknown
	Recipients        []string
	Subject           string
	Body              string
	ContentHash       string
	IsRead            bool
	InternalDate      time.Time
}

// InsertMessage persists one message row and returns its id. Text columns are
// passed through SanitizeUTF8 so malformed payloads cannot poison the insert.
func (db *Database) InsertMessage(ctx context.Context, opts *InsertMessageOptions) (int64, error) {
	if opts.InternalDate.IsZero() {
		opts.InternalDate = time.Now()
	}

	recipients := opts.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return 0, fmt.Errorf("failed to encode recipients: %w", err)
	}

	var displayName, senderEmail, contentHash *string
	if opts.SenderDisplayName != "" {
		displayName = &opts.SenderDisplayName
	}
	if opts.SenderEmail != "" {
		senderEmail = &opts.SenderEmail
	}
	if opts.ContentHash != "" {
		contentHash = &opts.ContentHash
	}

	var id int64
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO messages (
			account_id, mailbox_id, sender, sender_display_name, sender_email,
			recipients, subject, body, content_hash, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		opts.AccountID,
		opts.MailboxID,
		helpers.SanitizeUTF8(opts.Sender),
		displayName,
		senderEmail,
		recipientsJSON,
		helpers.SanitizeUTF8(opts.Subject),
		helpers.SanitizeUTF8(opts.Body),
		contentHash,
		opts.IsRead,
		opts.InternalDate,
	).Scan(&id)
	observeQuery("insert_message", err)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", mapError(err))
	}
	return id, nil
}

// Message is one stored mail row as read back from a mailbox.
type Message struct {
	ID                int64
	AccountID         int64
	MailboxID         int64
	Sender            string
	SenderDisplayName string
	SenderEmail       string
	Recipients        []string
	Subject           string
	Body              string
	ContentHash       string
	IsRead            bool
	CreatedAt         time.Time
}

// GetMessageByID returns consts.ErrMessageNotFound when the account has no
// message with that id.
func (db *Database) GetMessageByID(ctx context.Context, accountID, messageID int64) (*Message, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, account_id, mailbox_id, sender, sender_display_name, sender_email,
		       recipients, subject, body, content_hash, is_read, created_at
		FROM messages
		WHERE account_id = $1 AND id = $2
	`, accountID, messageID)

	msg, err := scanMessage(row)
	observeQuery("get_message", err)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, consts.ErrDBNotFound) {
			return nil, consts.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message %d: %w", messageID, err)
	}
	return msg, nil
}

// ListMailboxMessages returns the newest messages of one mailbox, most recent
// first. limit <= 0 means no limit.
func (db *Database) ListMailboxMessages(ctx context.Context, accountID, mailboxID int64, limit, offset int) ([]*Message, error) {
	query := `
		SELECT id, account_id, mailbox_id, sender, sender_display_name, sender_email,
		       recipients, subject, body, content_hash, is_read, created_at
		FROM messages
		WHERE account_id = $1 AND mailbox_id = $2
		ORDER BY created_at DESC, id DESC
		OFFSET $3`
	args := []any{accountID, mailboxID, offset}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	observeQuery("list_messages", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", mapError(err))
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", mapError(err))
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", mapError(err))
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var displayName, senderEmail, contentHash *string
	var recipientsJSON []byte
	err := row.Scan(&msg.ID, &msg.AccountID, &msg.MailboxID, &msg.Sender,
		&displayName, &senderEmail, &recipientsJSON, &msg.Subject, &msg.Body,
		&contentHash, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if displayName != nil {
		msg.SenderDisplayName = *displayName
	}
	if senderEmail != nil {
		msg.SenderEmail = *senderEmail
	}
	if contentHash != nil {
		msg.ContentHash = *contentHash
	}
	if len(recipientsJSON) > 0 {
		if err := json.Unmarshal(recipientsJSON, &msg.Recipients); err != nil {
			return nil, fmt.Errorf("failed to decode recipients: %w", err)
		}
	}
	return &msg, nil
}
