package scheduler

import (
	"context"
	"time"

	"jobharvest-engine/internal/logger"
)

type Task func(ctx context.Context) error

// Every runs task immediately and then on each tick until ctx is done. Ticks
// that fire while a run is still going are coalesced by the ticker, so runs
// never overlap. A non-positive interval runs the task once.
func Every(ctx context.Context, interval time.Duration, name string, task Task, log *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	run := func() {
		start := time.Now()
		if err := task(ctx); err != nil {
			log.Error().Err(err).Str("task", name).Msg("scheduled task failed")
			return
		}
		log.Debug().Str("task", name).Dur("took", time.Since(start)).Msg("scheduled task done")
	}

	run()
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if ctx.Err() != nil {
				return
			}
			run()
		}
	}
}
