package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandesh-mail/sandesh/consts"
)

// Account is a local user profile. DisplayName and Signature are optional;
// both feed the outbound sender identity.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	Signature    string
	IsAdmin      bool
	CreatedAt    time.Time
}

// GetAccountByUsername looks up a local account. Returns
// consts.ErrUserNotFound when the username does not exist.
func (db *Database) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	var account Account
	var displayName, signature *string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, username, password_hash, display_name, signature, is_admin, created_at
		FROM accounts
		WHERE username = $1
	`, username).Scan(&account.ID, &account.Username, &account.PasswordHash,
		&displayName, &signature, &account.IsAdmin, &account.CreatedAt)
	observeQuery("get_account", err)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, consts.ErrDBNotFound) {
			return nil, consts.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get account %q: %w", username, err)
	}

	if displayName != nil {
		account.DisplayName = *displayName
	}
	if signature != nil {
		account.Signature = *signature
	}
	return &account, nil
}

// CreateAccount inserts a new account with its default mailbox set in a
// single transaction.
func (db *Database) CreateAccount(ctx context.Context, username, passwordHash, displayName string, isAdmin bool) (*Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback(ctx)

	account := &Account{Username: username, PasswordHash: passwordHash, DisplayName: displayName, IsAdmin: isAdmin}
	var dn *string
	if displayName != "" {
		dn = &displayName
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (username, password_hash, display_name, is_admin)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, username, passwordHash, dn, isAdmin).Scan(&account.ID, &account.CreatedAt)
	observeQuery("create_account", err)
	if err != nil {
		return nil, fmt.Errorf("failed to create account %q: %w", username, mapError(err))
	}

	for _, name := range consts.DefaultMailboxes {
		if _, err := tx.Exec(ctx, `
			INSERT INTO mailboxes (account_id, name) VALUES ($1, $2)
		`, account.ID, name); err != nil {
			return nil, fmt.Errorf("failed to create mailbox %q: %w", name, mapError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
	}
	return account, nil
}

// UpdateAccountPassword replaces the stored password hash.
func (db *Database) UpdateAccountPassword(ctx context.Context, accountID int64, passwordHash string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2 WHERE id = $1
	`, accountID, passwordHash)
	observeQuery("update_account_password", err)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrUserNotFound
	}
	return nil
}

// UpdateAccountProfile sets the display name and signature used by the
// outbound send path. Empty strings clear the stored values.
func (db *Database) UpdateAccountProfile(ctx context.Context, accountID int64, displayName, signature string) error {
	var dn, sig *string
	if displayName != "" {
		dn = &displayName
	}
	if signature != "" {
		sig = &signature
	}
	tag, err := db.Pool.Exec(ctx, `
		UPDATE accounts SET display_name = $2, signature = $3 WHERE id = $1
	`, accountID, dn, sig)
	observeQuery("update_account_profile", err)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return consts.ErrUserNotFound
	}
	return nil
}
