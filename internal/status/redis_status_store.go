package status

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"jobharvest-engine/internal/domain"
)

// RedisStore keeps run summaries in Redis so several engine instances share
// one view of the last harvest.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks connectivity with a short timeout.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) SetRun(ctx context.Context, o domain.RunOutcome) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.prefix+"run:"+o.RunID, payload, s.ttl)
	pipe.Set(ctx, s.prefix+"latest", o.RunID, s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Run(ctx context.Context, runID string) (domain.RunOutcome, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+"run:"+runID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RunOutcome{}, false, nil
		}
		return domain.RunOutcome{}, false, err
	}

	var o domain.RunOutcome
	if err := json.Unmarshal([]byte(val), &o); err != nil {
		return domain.RunOutcome{}, false, err
	}
	return o, true, nil
}

func (s *RedisStore) Latest(ctx context.Context) (domain.RunOutcome, bool, error) {
	id, err := s.client.Get(ctx, s.prefix+"latest").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.RunOutcome{}, false, nil
		}
		return domain.RunOutcome{}, false, err
	}
	return s.Run(ctx, id)
}
