package secrets

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"jobharvest-engine/internal/config"
)

func TestSessionCookieKeyringRoundTrip(t *testing.T) {
	keyring.MockInit()
	cfg := config.Default()
	cfg.Feed.KeyringAccount = "pucp"
	acct := SessionAccount(cfg)

	if _, err := ResolveSessionCookie(cfg); !errors.Is(err, ErrNoSession) {
		t.Fatalf("want ErrNoSession, got %v", err)
	}
	if err := SetSessionCookie(acct, "  PHPSESSID=abc  "); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveSessionCookie(cfg)
	if err != nil || got != "PHPSESSID=abc" {
		t.Fatalf("got %q, %v", got, err)
	}

	if err := DeleteSessionCookie(acct); err != nil {
		t.Fatal(err)
	}
	if err := DeleteSessionCookie(acct); err != nil {
		t.Fatalf("deleting twice: %v", err)
	}
	if _, err := GetSessionCookie(acct); !errors.Is(err, ErrNoSession) {
		t.Fatalf("want ErrNoSession after delete, got %v", err)
	}
}

func TestConfiguredCookieWins(t *testing.T) {
	keyring.MockInit()
	cfg := config.Default()
	cfg.Feed.SessionCookie = "from-config"
	_ = SetSessionCookie(SessionAccount(cfg), "from-keyring")

	got, err := ResolveSessionCookie(cfg)
	if err != nil || got != "from-config" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestSetRejectsEmpty(t *testing.T) {
	keyring.MockInit()
	if err := SetSessionCookie("acct", " "); err == nil {
		t.Fatal("expected error for empty cookie")
	}
	if err := SetSessionCookie("", "x"); err == nil {
		t.Fatal("expected error for empty account")
	}
}
