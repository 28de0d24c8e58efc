package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port      int    `yaml:"port"`
		DataDir   string `yaml:"data_dir"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`
	} `yaml:"app"`

	Feed struct {
		BaseURL           string  `yaml:"base_url"`
		ListingPath       string  `yaml:"listing_path"`
		DetailPath        string  `yaml:"detail_path"`
		PerPage           int     `yaml:"per_page"`
		Sort              string  `yaml:"sort"`
		SessionCookie     string  `yaml:"session_cookie"`
		KeyringAccount    string  `yaml:"keyring_account"`
		UserAgent         string  `yaml:"user_agent"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"feed"`

	Collector struct {
		PollIntervalMS     int `yaml:"poll_interval_ms"`
		PollAttempts       int `yaml:"poll_attempts"`
		PageRetries        int `yaml:"page_retries"`
		PageRetryBackoffMS int `yaml:"page_retry_backoff_ms"`
		PageTimeoutSeconds int `yaml:"page_timeout_seconds"`
		MaxPages           int `yaml:"max_pages"`
	} `yaml:"collector"`

	Enricher struct {
		Workers              int `yaml:"workers"`
		MaxAttempts          int `yaml:"max_attempts"`
		BackoffMS            int `yaml:"backoff_ms"`
		MaxBackoffMS         int `yaml:"max_backoff_ms"`
		DetailTimeoutSeconds int `yaml:"detail_timeout_seconds"`
	} `yaml:"enricher"`

	Normalizer struct {
		Workers           int `yaml:"workers"`
		CustomFieldSchema int `yaml:"custom_field_schema"`
	} `yaml:"normalizer"`

	Pipeline struct {
		Resume      bool   `yaml:"resume"`
		ArtifactDir string `yaml:"artifact_dir"`
	} `yaml:"pipeline"`

	Polling struct {
		HarvestMinutes int `yaml:"harvest_minutes"`
	} `yaml:"polling"`

	Store struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"store"`

	Status struct {
		RedisAddr   string `yaml:"redis_addr"`
		RedisPrefix string `yaml:"redis_prefix"`
		TTLHours    int    `yaml:"ttl_hours"`
	} `yaml:"status"`

	Sink struct {
		Kafka struct {
			Enabled bool     `yaml:"enabled"`
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"sink"`
}

// Default returns the configuration used when no file overrides a field.
func Default() Config {
	var cfg Config
	cfg.App.Port = 38471
	cfg.App.DataDir = "./data"
	cfg.App.LogLevel = "info"
	cfg.App.LogFormat = "console"

	cfg.Feed.BaseURL = "https://pucp-csm.symplicity.com"
	cfg.Feed.ListingPath = "/api/v2/jobs"
	cfg.Feed.DetailPath = "/api/v3/jobs/{id}"
	cfg.Feed.PerPage = 20
	cfg.Feed.Sort = "!postdate"
	cfg.Feed.KeyringAccount = "default"
	cfg.Feed.UserAgent = "jobharvest-engine/1.0"
	cfg.Feed.RequestsPerSecond = 2
	cfg.Feed.Burst = 2

	cfg.Collector.PollIntervalMS = 500
	cfg.Collector.PollAttempts = 20
	cfg.Collector.PageRetries = 3
	cfg.Collector.PageRetryBackoffMS = 1000
	cfg.Collector.PageTimeoutSeconds = 30

	cfg.Enricher.Workers = 6
	cfg.Enricher.MaxAttempts = 3
	cfg.Enricher.BackoffMS = 500
	cfg.Enricher.MaxBackoffMS = 8000
	cfg.Enricher.DetailTimeoutSeconds = 20

	cfg.Normalizer.Workers = 4
	cfg.Normalizer.CustomFieldSchema = 1

	cfg.Pipeline.Resume = true

	cfg.Status.RedisPrefix = "jobharvest:status:"
	cfg.Status.TTLHours = 24

	cfg.Sink.Kafka.Topic = "canonical-jobs"
	return cfg
}

// Load reads path on top of Default. Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// ApplyEnv overlays JOBHARVEST_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("JOBHARVEST_DATA_DIR")); v != "" {
		cfg.App.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("JOBHARVEST_SESSION_COOKIE")); v != "" {
		cfg.Feed.SessionCookie = v
	}
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Collector.PollIntervalMS) * time.Millisecond
}

func (c Config) PageRetryBackoff() time.Duration {
	return time.Duration(c.Collector.PageRetryBackoffMS) * time.Millisecond
}

func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Collector.PageTimeoutSeconds) * time.Second
}

func (c Config) DetailTimeout() time.Duration {
	return time.Duration(c.Enricher.DetailTimeoutSeconds) * time.Second
}

func (c Config) EnrichBackoff() time.Duration {
	return time.Duration(c.Enricher.BackoffMS) * time.Millisecond
}

func (c Config) EnrichMaxBackoff() time.Duration {
	return time.Duration(c.Enricher.MaxBackoffMS) * time.Millisecond
}

func (c Config) StatusTTL() time.Duration {
	return time.Duration(c.Status.TTLHours) * time.Hour
}

func (c Config) HarvestInterval() time.Duration {
	return time.Duration(c.Polling.HarvestMinutes) * time.Minute
}

// ArtifactDir defaults to artifacts/ inside the data dir.
func (c Config) ArtifactDir() string {
	if p := strings.TrimSpace(c.Pipeline.ArtifactDir); p != "" {
		return p
	}
	return filepath.Join(c.App.DataDir, "artifacts")
}

// SQLitePath defaults to jobs.db inside the data dir.
func (c Config) SQLitePath() string {
	if p := strings.TrimSpace(c.Store.SQLitePath); p != "" {
		return p
	}
	return filepath.Join(c.App.DataDir, "jobs.db")
}
