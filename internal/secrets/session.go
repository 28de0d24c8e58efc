package secrets

import (
	"errors"
	"strings"

	"github.com/zalando/go-keyring"

	"jobharvest-engine/internal/config"
)

// KeyringService groups the harvester's secrets in the OS keychain.
const KeyringService = "jobharvest"

var ErrNoSession = errors.New("session cookie not found (set it in the keychain or via JOBHARVEST_SESSION_COOKIE)")

// SessionAccount is the keychain account holding the feed session cookie.
func SessionAccount(cfg config.Config) string {
	acct := strings.TrimSpace(cfg.Feed.KeyringAccount)
	if acct == "" {
		acct = "default"
	}
	return "jobharvest:session:" + acct
}

func GetSessionCookie(account string) (string, error) {
	if strings.TrimSpace(account) == "" {
		return "", ErrNoSession
	}
	v, err := keyring.Get(KeyringService, account)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", ErrNoSession
	}
	return strings.TrimSpace(v), nil
}

func SetSessionCookie(account, cookie string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(cookie) == "" {
		return errors.New("session cookie is empty")
	}
	return keyring.Set(KeyringService, account, strings.TrimSpace(cookie))
}

func DeleteSessionCookie(account string) error {
	if strings.TrimSpace(account) == "" {
		return errors.New("keyring account name is empty")
	}
	err := keyring.Delete(KeyringService, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// ResolveSessionCookie prefers the value already in cfg (file or environment)
// and falls back to the keychain.
func ResolveSessionCookie(cfg config.Config) (string, error) {
	if v := strings.TrimSpace(cfg.Feed.SessionCookie); v != "" {
		return v, nil
	}
	return GetSessionCookie(SessionAccount(cfg))
}
