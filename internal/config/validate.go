package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg and the problems found.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	out.Feed.BaseURL = strings.TrimRight(strings.TrimSpace(out.Feed.BaseURL), "/")
	out.Feed.SessionCookie = strings.TrimSpace(out.Feed.SessionCookie)
	out.App.LogFormat = strings.ToLower(strings.TrimSpace(out.App.LogFormat))

	var brokers []string
	for _, b := range out.Sink.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	out.Sink.Kafka.Brokers = brokers

	// ---- Validation rules ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}
	if strings.TrimSpace(out.App.DataDir) == "" {
		res.addErr("app.data_dir is required")
	}
	switch out.App.LogFormat {
	case "", "console", "json":
	default:
		res.addErr("app.log_format must be console or json (got %q)", out.App.LogFormat)
	}

	// feed
	if u, err := url.Parse(out.Feed.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		res.addErr("feed.base_url must be an absolute URL (got %q)", out.Feed.BaseURL)
	}
	if !strings.Contains(out.Feed.DetailPath, "{id}") {
		res.addErr("feed.detail_path must contain the {id} placeholder")
	}
	if out.Feed.PerPage <= 0 {
		res.addErr("feed.per_page must be > 0")
	}
	if out.Feed.RequestsPerSecond <= 0 {
		res.addErr("feed.requests_per_second must be > 0")
	} else if out.Feed.RequestsPerSecond > 10 {
		res.addWarn("feed.requests_per_second is high (%.1f) and may get the session throttled.", out.Feed.RequestsPerSecond)
	}
	if out.Feed.Burst <= 0 {
		out.Feed.Burst = 1
	}

	// collector
	if out.Collector.PollIntervalMS <= 0 {
		res.addErr("collector.poll_interval_ms must be > 0")
	}
	if out.Collector.PollAttempts <= 0 {
		res.addErr("collector.poll_attempts must be > 0")
	}
	if out.Collector.PageRetries < 0 {
		res.addErr("collector.page_retries must be >= 0")
	}
	if out.Collector.PageTimeoutSeconds <= 0 {
		res.addErr("collector.page_timeout_seconds must be > 0")
	}
	if out.Collector.MaxPages < 0 {
		res.addErr("collector.max_pages must be >= 0 (0 means unbounded)")
	}

	// enricher
	if out.Enricher.Workers < 1 || out.Enricher.Workers > 8 {
		res.addErr("enricher.workers must be 1..8 (got %d)", out.Enricher.Workers)
	} else if out.Enricher.Workers < 4 {
		res.addWarn("enricher.workers=%d; enrichment of a full feed will be slow.", out.Enricher.Workers)
	}
	if out.Enricher.MaxAttempts < 1 {
		res.addErr("enricher.max_attempts must be >= 1")
	}
	if out.Enricher.DetailTimeoutSeconds <= 0 {
		res.addErr("enricher.detail_timeout_seconds must be > 0")
	}
	if out.Enricher.MaxBackoffMS > 0 && out.Enricher.MaxBackoffMS < out.Enricher.BackoffMS {
		res.addWarn("enricher.max_backoff_ms is below backoff_ms; every retry waits max_backoff_ms.")
	}

	// normalizer
	if out.Normalizer.Workers <= 0 {
		out.Normalizer.Workers = 1
	}
	if out.Normalizer.CustomFieldSchema != 1 {
		res.addErr("normalizer.custom_field_schema %d is unknown (supported: 1)", out.Normalizer.CustomFieldSchema)
	}

	if out.Polling.HarvestMinutes < 0 {
		res.addErr("polling.harvest_minutes must be >= 0")
	} else if out.Polling.HarvestMinutes > 0 && out.Polling.HarvestMinutes < 15 {
		res.addWarn("polling.harvest_minutes is very low (%d); a full harvest may not finish between runs.", out.Polling.HarvestMinutes)
	}

	if out.Status.RedisAddr != "" && out.Status.TTLHours <= 0 {
		res.addErr("status.ttl_hours must be > 0 when status.redis_addr is set")
	}

	if out.Sink.Kafka.Enabled {
		if len(out.Sink.Kafka.Brokers) == 0 {
			res.addErr("sink.kafka.brokers is required when sink.kafka.enabled=true")
		}
		if strings.TrimSpace(out.Sink.Kafka.Topic) == "" {
			res.addErr("sink.kafka.topic is required when sink.kafka.enabled=true")
		}
	}

	if out.Feed.SessionCookie != "" {
		res.addWarn("feed.session_cookie is set in the config file; prefer `engine session set` to keep it in the OS keyring.")
	}

	return out, res
}
