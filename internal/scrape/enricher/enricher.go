package enricher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/scrape/util"
)

type Config struct {
	Workers     int
	MaxAttempts int
	// Backoff doubles after every failed attempt, up to MaxBackoff, with
	// jitter.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Timeout bounds a single detail request.
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:     6,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		MaxBackoff:  8 * time.Second,
		Timeout:     20 * time.Second,
	}
}

type Result struct {
	// Details are ordered by first occurrence of their id in the input.
	Details     []domain.RawDetail
	Failures    []domain.Failure
	SkippedNoID int
	Duplicates  int
	Cancelled   bool
}

type Enricher struct {
	fetcher types.DetailFetcher
	cfg     Config
	log     *logger.Logger
}

func New(fetcher types.DetailFetcher, cfg Config, log *logger.Logger) *Enricher {
	def := DefaultConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.Workers > 8 {
		cfg.Workers = 8
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Enricher{fetcher: fetcher, cfg: cfg, log: log}
}

// UniqueIDs returns the distinct non-empty stub ids in first-seen order along
// with how many stubs had no id and how many repeated an earlier id.
func UniqueIDs(stubs []domain.ListingStub) (ids []string, missing, dups int) {
	seen := make(map[string]bool, len(stubs))
	for _, s := range stubs {
		if s.ID == "" {
			missing++
			continue
		}
		if seen[s.ID] {
			dups++
			continue
		}
		seen[s.ID] = true
		ids = append(ids, s.ID)
	}
	return ids, missing, dups
}

// Run fetches the detail of every distinct stub id with a bounded worker pool.
// A failing id never affects the others. When ctx is cancelled no new fetches
// start; fetches already running finish or hit their timeout.
func (e *Enricher) Run(ctx context.Context, stubs []domain.ListingStub) Result {
	ids, missing, dups := UniqueIDs(stubs)
	res := Result{SkippedNoID: missing, Duplicates: dups}
	if missing > 0 {
		e.log.Warn().Int("count", missing).Msg("stubs without id skipped")
	}

	set := NewDetailSet()
	var (
		mu       sync.Mutex
		failures = map[string]domain.Failure{}
	)
	fail := func(f domain.Failure) {
		mu.Lock()
		failures[f.ID] = f
		mu.Unlock()
	}

	// In-flight requests outlive cancellation of ctx; each is bounded by
	// cfg.Timeout instead.
	inflight := context.WithoutCancel(ctx)

	workCh := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range workCh {
				d, f, ok := e.fetchOne(ctx, inflight, id)
				if ok {
					set.Upsert(d)
				} else {
					fail(f)
				}
			}
		}()
	}

	sent := 0
feed:
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case workCh <- id:
			sent++
		}
	}
	close(workCh)
	wg.Wait()

	if sent < len(ids) {
		res.Cancelled = true
		for _, id := range ids[sent:] {
			fail(domain.Failure{
				ID:     id,
				Stage:  domain.StageEnrich,
				Kind:   domain.KindCancelled,
				Reason: "not attempted: run cancelled",
			})
		}
	}
	if ctx.Err() != nil {
		res.Cancelled = true
	}

	res.Details = set.Ordered(ids)
	for _, id := range ids {
		if f, ok := failures[id]; ok {
			res.Failures = append(res.Failures, f)
		}
	}

	e.log.Info().
		Int("ids", len(ids)).
		Int("fetched", len(res.Details)).
		Int("failed", len(res.Failures)).
		Int("duplicates", dups).
		Msg("enrichment finished")
	return res
}

// fetchOne fetches one id with up to MaxAttempts tries and exponential
// backoff between them. A timeout counts as a transport error. Cancelling
// ctx stops further retries but not the attempt in flight.
func (e *Enricher) fetchOne(ctx, inflight context.Context, id string) (domain.RawDetail, domain.Failure, bool) {
	var (
		payload  json.RawMessage
		lastErr  error
		attempts int
	)
	op := func() error {
		attempts++
		fctx, cancel := context.WithTimeout(inflight, e.cfg.Timeout)
		defer cancel()
		p, err := e.fetcher.FetchDetail(fctx, id)
		if err != nil && errors.Is(fctx.Err(), context.DeadlineExceeded) {
			err = domain.Wrap(domain.ErrTransport, "enrich", "fetch detail", "timeout", err)
		}
		if err == nil {
			err = checkPayload(p)
		}
		if err != nil {
			lastErr = err
			return err
		}
		payload = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		e.log.Debug().Err(err).Str("id", id).Int("attempt", attempts).Dur("retry_in", wait).Msg("detail fetch failed")
	}

	policy := util.NewExponentialBackOff(e.cfg.Backoff, e.cfg.MaxBackoff)
	if err := util.Retry(ctx, policy, e.cfg.MaxAttempts-1, op, notify); err == nil {
		return domain.RawDetail{ID: id, Payload: payload}, domain.Failure{}, true
	}

	if attempts < e.cfg.MaxAttempts && ctx.Err() != nil {
		return domain.RawDetail{}, domain.Failure{
			ID:       id,
			Stage:    domain.StageEnrich,
			Kind:     domain.KindCancelled,
			Reason:   fmt.Sprintf("run cancelled before retry; last error: %v", lastErr),
			Attempts: attempts,
		}, false
	}

	e.log.Warn().Str("id", id).Int("attempts", attempts).Err(lastErr).Msg("detail abandoned")
	return domain.RawDetail{}, domain.Failure{
		ID:       id,
		Stage:    domain.StageEnrich,
		Kind:     domain.KindOf(lastErr),
		Reason:   lastErr.Error(),
		Attempts: attempts,
	}, false
}

// checkPayload rejects empty bodies and anything that is not a JSON object.
func checkPayload(p json.RawMessage) error {
	b := bytes.TrimSpace(p)
	if len(b) == 0 {
		return domain.Wrap(domain.ErrMalformed, "enrich", "decode detail", "empty body", nil)
	}
	if b[0] != '{' || !json.Valid(b) {
		return domain.Wrap(domain.ErrMalformed, "enrich", "decode detail", "body is not a JSON object", nil)
	}
	return nil
}
