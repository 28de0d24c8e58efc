package main

import (
	"context"
	"time"

	"jobharvest-engine/internal/artifact"
	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/pipeline"
	"jobharvest-engine/internal/poll"
	"jobharvest-engine/internal/scrape/symplicity"
	"jobharvest-engine/internal/scrape/util"
	"jobharvest-engine/internal/secrets"
	"jobharvest-engine/internal/sink"
	"jobharvest-engine/internal/status"
	"jobharvest-engine/internal/store"
)

// resources are opened once per process and shared by every harvest.
type resources struct {
	db     *store.DB
	status status.Store
	redis  *status.RedisStore
	log    *logger.Logger
}

func openResources(ctx context.Context, cfg config.Config) (*resources, error) {
	log := logger.New("engine")

	db, err := store.Open(cfg.SQLitePath())
	if err != nil {
		return nil, err
	}
	res := &resources{db: db, status: status.NewMemoryStore(), log: log}

	if cfg.Status.RedisAddr != "" {
		rs := status.NewRedisStore(cfg.Status.RedisAddr, cfg.Status.RedisPrefix, cfg.StatusTTL())
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rs.Ping(pctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Status.RedisAddr).Msg("redis unreachable; keeping run status in memory")
			_ = rs.Close()
		} else {
			res.status = rs
			res.redis = rs
		}
	}

	log.Info().Str("db", cfg.SQLitePath()).Bool("redis", res.redis != nil).Msg("resources ready")
	return res, nil
}

func (r *resources) Close() {
	if r == nil {
		return
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if err := r.db.Close(); err != nil {
		r.log.LogError("close database", err)
	}
}

// builder returns the poll.Builder that wires a fresh feed session, the
// artifact directory and the optional Kafka sink around the shared resources.
func (r *resources) builder() poll.Builder {
	return func(cfg config.Config, notify func(string, any)) (poll.Harvester, func(), error) {
		cookie, err := secrets.ResolveSessionCookie(cfg)
		if err != nil {
			r.log.Debug().Err(err).Msg("no session cookie in keychain")
		}

		client, err := symplicity.New(symplicity.Config{
			BaseURL:       cfg.Feed.BaseURL,
			ListingPath:   cfg.Feed.ListingPath,
			DetailPath:    cfg.Feed.DetailPath,
			PerPage:       cfg.Feed.PerPage,
			Sort:          cfg.Feed.Sort,
			SessionCookie: cookie,
			UserAgent:     cfg.Feed.UserAgent,
		}, util.NewHostLimiter(cfg.Feed.RequestsPerSecond, cfg.Feed.Burst))
		if err != nil {
			return nil, nil, err
		}

		arts, err := artifact.Open(cfg.ArtifactDir())
		if err != nil {
			return nil, nil, err
		}

		opts, err := pipeline.OptionsFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		cleanup := func() {}
		var pub sink.Publisher
		if cfg.Sink.Kafka.Enabled {
			kp := sink.NewKafkaPublisher(cfg.Sink.Kafka.Brokers, cfg.Sink.Kafka.Topic)
			pub = kp
			cleanup = func() {
				if err := kp.Close(); err != nil {
					r.log.LogError("close kafka writer", err)
				}
			}
		}

		d, err := pipeline.New(pipeline.Deps{
			Feed:      client,
			Details:   client,
			Artifacts: arts,
			DB:        r.db.Pool,
			Status:    r.status,
			Sink:      pub,
			Notify:    notify,
			Log:       logger.New("pipeline"),
		}, opts)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		return d, cleanup, nil
	}
}
