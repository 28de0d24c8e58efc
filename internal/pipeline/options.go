package pipeline

import (
	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/normalize"
	"jobharvest-engine/internal/scrape/collector"
	"jobharvest-engine/internal/scrape/enricher"
)

type Options struct {
	Collector        collector.Config
	Enricher         enricher.Config
	NormalizeWorkers int
	Schema           normalize.CustomFieldSchema
	// Resume reuses the artifacts of the last run's completed stages.
	Resume bool
}

// OptionsFromConfig maps the config file sections onto stage settings.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	schema, err := normalize.SchemaByVersion(cfg.Normalizer.CustomFieldSchema)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Collector: collector.Config{
			PollInterval: cfg.PollInterval(),
			PollAttempts: cfg.Collector.PollAttempts,
			PageRetries:  cfg.Collector.PageRetries,
			RetryBackoff: cfg.PageRetryBackoff(),
			PageTimeout:  cfg.PageTimeout(),
			MaxPages:     cfg.Collector.MaxPages,
		},
		Enricher: enricher.Config{
			Workers:     cfg.Enricher.Workers,
			MaxAttempts: cfg.Enricher.MaxAttempts,
			Backoff:     cfg.EnrichBackoff(),
			MaxBackoff:  cfg.EnrichMaxBackoff(),
			Timeout:     cfg.DetailTimeout(),
		},
		NormalizeWorkers: cfg.Normalizer.Workers,
		Schema:           schema,
		Resume:           cfg.Pipeline.Resume,
	}, nil
}
