package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	_, v := NormalizeAndValidate(Default())
	if !v.OK() {
		t.Fatalf("default config invalid: %v", v.Errors)
	}
}

func TestNormalizeAndValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Enricher.Workers = 12
	cfg.Collector.PollAttempts = 0
	cfg.Feed.DetailPath = "/api/v3/jobs"
	cfg.Sink.Kafka.Enabled = true

	_, v := NormalizeAndValidate(cfg)
	if v.OK() {
		t.Fatal("expected validation errors")
	}
	want := []string{"enricher.workers", "collector.poll_attempts", "feed.detail_path", "sink.kafka.brokers"}
	for _, w := range want {
		found := false
		for _, e := range v.Errors {
			if strings.Contains(e, w) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing error for %s in %v", w, v.Errors)
		}
	}
}

func TestNormalizeTrimsBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Feed.BaseURL = " https://feed.example.com/ "
	out, v := NormalizeAndValidate(cfg)
	if !v.OK() {
		t.Fatalf("unexpected errors: %v", v.Errors)
	}
	if out.Feed.BaseURL != "https://feed.example.com" {
		t.Fatalf("base url = %q", out.Feed.BaseURL)
	}
}

func TestEnsureUserConfigAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JOBHARVEST_DATA_DIR", "")
	t.Setenv("JOBHARVEST_SESSION_COOKIE", "")

	path, err := EnsureUserConfig(dir)
	if err != nil {
		t.Fatalf("EnsureUserConfig: %v", err)
	}
	if path != filepath.Join(dir, "config.yml") {
		t.Fatalf("path = %q", path)
	}

	// Partial file: unspecified fields keep their defaults.
	if err := os.WriteFile(path, []byte("collector:\n  poll_attempts: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collector.PollAttempts != 5 {
		t.Fatalf("poll_attempts = %d, want 5", cfg.Collector.PollAttempts)
	}
	if cfg.Enricher.MaxAttempts != 3 {
		t.Fatalf("max_attempts = %d, want default 3", cfg.Enricher.MaxAttempts)
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("app:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JOBHARVEST_SESSION_COOKIE", "sid=abc")
	t.Setenv("JOBHARVEST_DATA_DIR", dir)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Feed.SessionCookie != "sid=abc" || cfg.App.DataDir != dir {
		t.Fatalf("env not applied: cookie=%q dir=%q", cfg.Feed.SessionCookie, cfg.App.DataDir)
	}
}

func TestSaveAtomicKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	cfg := Default()
	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}
	cfg.App.Port = 40000
	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Fatalf("expected backup: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.App.Port != 40000 {
		t.Fatalf("port = %d", got.App.Port)
	}

	cfg.Enricher.Workers = 0
	if err := SaveAtomic(path, cfg); err == nil {
		t.Fatal("expected invalid config to be rejected")
	}
}
