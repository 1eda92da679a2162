package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandesh-mail/sandesh/config"
	"github.com/sandesh-mail/sandesh/consts"
)

const namespaceSettingKey = "mail_namespace"

// GetSystemSetting returns consts.ErrDBNotFound when the key is unset.
func (db *Database) GetSystemSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.Pool.QueryRow(ctx, `
		SELECT value FROM settings WHERE key = $1
	`, key).Scan(&value)
	observeQuery("get_setting", err)
	if err != nil {
		return "", mapError(err)
	}
	return value, nil
}

// SetSystemSetting upserts a settings row.
func (db *Database) SetSystemSetting(ctx context.Context, key, value string) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, key, value)
	observeQuery("set_setting", err)
	return mapError(err)
}

// SystemSettings exposes the runtime-mutable system configuration. The
// namespace is read from the settings table on every call, never cached, so
// an administrative change takes effect for all subsequent new messages.
// Messages already delivered keep the identity captured at their write time.
type SystemSettings struct {
	db               *Database
	defaultNamespace string
}

func NewSystemSettings(db *Database, defaultNamespace string) *SystemSettings {
	return &SystemSettings{db: db, defaultNamespace: defaultNamespace}
}

// Namespace returns the current mail namespace, falling back to the
// configured bootstrap value when none is stored yet.
func (s *SystemSettings) Namespace(ctx context.Context) (string, error) {
	value, err := s.db.GetSystemSetting(ctx, namespaceSettingKey)
	if err != nil {
		if errors.Is(err, consts.ErrDBNotFound) {
			return s.defaultNamespace, nil
		}
		return "", err
	}
	return value, nil
}

// SetNamespace validates and stores a new mail namespace.
func (s *SystemSettings) SetNamespace(ctx context.Context, namespace string) error {
	namespace = strings.ToLower(strings.TrimSpace(namespace))
	if !config.NamespacePattern.MatchString(namespace) {
		return fmt.Errorf("invalid namespace %q: must match %s", namespace, config.NamespacePattern.String())
	}
	return s.db.SetSystemSetting(ctx, namespaceSettingKey, namespace)
}
