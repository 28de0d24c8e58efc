package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/scrape/util"
)

var errNoGrowth = errors.New("accumulated count did not grow")

type Config struct {
	// PollInterval and PollAttempts bound how long the collector waits for the
	// accumulation counter to grow after a page request.
	PollInterval time.Duration
	PollAttempts int
	// PageRetries is the number of extra attempts for a page that fails with
	// a transport error. Backoff grows linearly by RetryBackoff.
	// PageTimeout bounds each attempt.
	PageRetries  int
	RetryBackoff time.Duration
	PageTimeout  time.Duration
	// MaxPages stops collection early when > 0.
	MaxPages int
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		PollAttempts: 20,
		PageRetries:  3,
		RetryBackoff: time.Second,
		PageTimeout:  30 * time.Second,
	}
}

// Result is what a collection run produced. Stubs are in arrival order and are
// returned even when Status is stalled.
type Result struct {
	Stubs  []domain.ListingStub
	Status domain.CollectStatus
	Pages  int
	Reason string
}

type Collector struct {
	feed types.PagedFeed
	cfg  Config
	log  *logger.Logger
}

func New(feed types.PagedFeed, cfg Config, log *logger.Logger) *Collector {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = def.PollAttempts
	}
	if cfg.PageRetries < 0 {
		cfg.PageRetries = 0
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = def.PageTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Collector{feed: feed, cfg: cfg, log: log}
}

// Run walks the feed until it reports an end marker (completed) or stops
// making progress (stalled). It never returns an error.
func (c *Collector) Run(ctx context.Context) Result {
	var res Result

	stalled := func(reason string) Result {
		res.Status = domain.CollectStalled
		res.Reason = reason
		c.log.Warn().
			Str("feed", c.feed.Name()).
			Int("pages", res.Pages).
			Int("stubs", len(res.Stubs)).
			Msgf("collection stalled: %s", reason)
		return res
	}

	prev := c.count(ctx, 0)

	for {
		select {
		case <-ctx.Done():
			return stalled("cancelled")
		default:
		}
		if c.cfg.MaxPages > 0 && res.Pages >= c.cfg.MaxPages {
			return stalled(fmt.Sprintf("page ceiling %d reached", c.cfg.MaxPages))
		}

		page, err := c.fetchPage(ctx, res.Pages+1)
		if err != nil {
			return stalled(fmt.Sprintf("page %d: %v", res.Pages+1, err))
		}
		res.Pages++
		res.Stubs = append(res.Stubs, page.Items...)

		if page.EndMarker {
			res.Status = domain.CollectCompleted
			c.log.Info().
				Str("feed", c.feed.Name()).
				Int("pages", res.Pages).
				Int("stubs", len(res.Stubs)).
				Msg("collection completed")
			return res
		}

		n, grew := c.waitForGrowth(ctx, prev)
		if !grew {
			if ctx.Err() != nil {
				return stalled("cancelled")
			}
			return stalled(fmt.Sprintf("no growth past %d items after %d polls", prev, c.cfg.PollAttempts))
		}
		c.log.Debug().Int("page", res.Pages).Int("items", len(page.Items)).Int("total", n).Msg("page collected")
		prev = n
	}
}

// fetchPage requests the next page, retrying failures with linear backoff.
// Each attempt is bounded by PageTimeout.
func (c *Collector) fetchPage(ctx context.Context, pageNo int) (types.PageResult, error) {
	var (
		page     types.PageResult
		attempts int
		lastErr  error
	)
	op := func() error {
		attempts++
		pctx, cancel := context.WithTimeout(ctx, c.cfg.PageTimeout)
		defer cancel()
		p, err := c.feed.FetchNextPage(pctx)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		page = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Int("page", pageNo).Int("attempt", attempts).Dur("retry_in", wait).Msg("page request failed")
	}

	err := util.Retry(ctx, &util.LinearBackOff{Step: c.cfg.RetryBackoff}, c.cfg.PageRetries, op, notify)
	switch {
	case err == nil:
		return page, nil
	case ctx.Err() != nil:
		return types.PageResult{}, ctx.Err()
	}
	return types.PageResult{}, domain.Wrap(domain.ErrTransport, "collect", "fetch page",
		fmt.Sprintf("gave up after %d attempts", attempts), lastErr)
}

// waitForGrowth polls the accumulation counter every PollInterval until it
// exceeds prev or PollAttempts reads have been made.
func (c *Collector) waitForGrowth(ctx context.Context, prev int) (int, bool) {
	n := prev
	err := util.Retry(ctx, backoff.NewConstantBackOff(c.cfg.PollInterval), c.cfg.PollAttempts-1, func() error {
		if n = c.count(ctx, prev); n > prev {
			return nil
		}
		return errNoGrowth
	}, nil)
	if err != nil {
		return prev, false
	}
	return n, true
}

func (c *Collector) count(ctx context.Context, fallback int) int {
	n, err := c.feed.AccumulatedCount(ctx)
	if err != nil {
		c.log.Debug().Err(err).Msg("accumulated count unavailable")
		return fallback
	}
	return n
}
