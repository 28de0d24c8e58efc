package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/scheduler"
	"jobharvest-engine/internal/scrape/types"
)

var ErrRunning = errors.New("harvest already running")

// Runner serializes harvests started by the scheduler and the HTTP API and
// keeps the live types.HarvestStatus.
type Runner struct {
	cfgVal  *atomic.Value // config.Config
	status  atomic.Value  // types.HarvestStatus
	build   Builder
	hub     *events.Hub
	log     *logger.Logger
	running atomic.Bool
	wg      sync.WaitGroup
}

func NewRunner(cfgVal *atomic.Value, build Builder, hub *events.Hub, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.Nop()
	}
	r := &Runner{cfgVal: cfgVal, build: build, hub: hub, log: log}
	r.status.Store(types.HarvestStatus{})
	return r
}

func (r *Runner) Status() types.HarvestStatus {
	return r.status.Load().(types.HarvestStatus)
}

// RunOnce harvests synchronously. It returns ErrRunning when another harvest
// holds the runner.
func (r *Runner) RunOnce(ctx context.Context, fresh bool) (domain.RunOutcome, error) {
	if !r.running.CompareAndSwap(false, true) {
		return domain.RunOutcome{}, ErrRunning
	}
	defer r.running.Store(false)
	r.wg.Add(1)
	defer r.wg.Done()
	return r.run(ctx, "", fresh)
}

// Start harvests in the background. It reports false when a harvest is
// already running.
func (r *Runner) Start(ctx context.Context, reqID string, fresh bool) bool {
	if !r.running.CompareAndSwap(false, true) {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)
		_, _ = r.run(ctx, reqID, fresh)
	}()
	return true
}

// Wait blocks until no harvest is running.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context, reqID string, fresh bool) (domain.RunOutcome, error) {
	prev := r.Status()
	now := time.Now().Format(time.RFC3339)
	r.status.Store(types.HarvestStatus{
		LastRunAt: now,
		LastOkAt:  prev.LastOkAt,
		LastRunID: prev.LastRunID,
		Running:   true,
	})

	cfg := r.cfgVal.Load().(config.Config)
	if fresh {
		cfg.Pipeline.Resume = false
	}
	notify := r.hub.Notifier(reqID)

	out, err := PollOnce(ctx, cfg, r.build, notify)

	next := r.Status()
	next.Running = false
	if err != nil {
		next.LastError = err.Error()
		r.log.Error().Err(err).Bool("fatal", domain.IsFatal(err)).Msg("harvest failed")
		notify(events.TypeHarvestFailed, map[string]any{"error": err.Error()})
		r.status.Store(next)
		return out, err
	}

	next.LastRunID = out.RunID
	next.CollectStatus = string(out.CollectStatus)
	next.LastRecords = out.Counts.RecordsNormalized
	next.LastFailures = len(out.Failures)
	next.LastError = ""
	if !out.Cancelled {
		next.LastOkAt = time.Now().Format(time.RFC3339)
	} else {
		next.LastError = "cancelled"
	}
	r.status.Store(next)
	return out, nil
}

// StartPoller harvests every interval until ctx is done. Ticks that land on a
// running harvest are skipped.
func StartPoller(ctx context.Context, r *Runner, interval time.Duration) {
	if interval <= 0 {
		r.log.Info().Msg("scheduled harvests disabled")
		return
	}
	go scheduler.Every(ctx, interval, "harvest", func(ctx context.Context) error {
		_, err := r.RunOnce(ctx, false)
		if errors.Is(err, ErrRunning) {
			r.log.Debug().Msg("harvest already running; skipping tick")
			return nil
		}
		return err
	}, r.log)
}
