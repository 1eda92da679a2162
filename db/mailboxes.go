package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandesh-mail/sandesh/consts"
)

// Mailbox is a named container of messages owned by one account.
type Mailbox struct {
	ID        int64
	AccountID int64
	Name      string
	CreatedAt time.Time
}

// GetMailboxByName returns consts.ErrMailboxNotFound when the account has no
// mailbox with that name.
func (db *Database) GetMailboxByName(ctx context.Context, accountID int64, name string) (*Mailbox, error) {
	var mailbox Mailbox
	err := db.Pool.QueryRow(ctx, `
		SELECT id, account_id, name, created_at
		FROM mailboxes
		WHERE account_id = $1 AND name = $2
	`, accountID, name).Scan(&mailbox.ID, &mailbox.AccountID, &mailbox.Name, &mailbox.CreatedAt)
	observeQuery("get_mailbox", err)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, consts.ErrDBNotFound) {
			return nil, consts.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("failed to get mailbox %q: %w", name, err)
	}
	return &mailbox, nil
}

// GetOrCreateMailbox resolves a mailbox, creating it when absent. The insert
// tolerates a concurrent creator: on conflict it falls through to the select,
// so the call is idempotent under contention.
func (db *Database) GetOrCreateMailbox(ctx context.Context, accountID int64, name string) (*Mailbox, error) {
	mailbox, err := db.GetMailboxByName(ctx, accountID, name)
	if err == nil {
		return mailbox, nil
	}
	if !errors.Is(err, consts.ErrMailboxNotFound) {
		return nil, err
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO mailboxes (account_id, name) VALUES ($1, $2)
		ON CONFLICT (account_id, name) DO NOTHING
	`, accountID, name)
	observeQuery("create_mailbox", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create mailbox %q: %w", name, mapError(err))
	}

	return db.GetMailboxByName(ctx, accountID, name)
}
