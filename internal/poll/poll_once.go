package poll

import (
	"context"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/domain"
)

// Harvester runs one harvest. *pipeline.Driver satisfies it.
type Harvester interface {
	Run(ctx context.Context) (domain.RunOutcome, error)
}

// Builder assembles a harvester for cfg. notify receives pipeline progress
// events. cleanup releases whatever the build opened for this run.
type Builder func(cfg config.Config, notify func(typ string, data any)) (h Harvester, cleanup func(), err error)

// PollOnce builds a harvester from cfg and runs it to completion.
func PollOnce(ctx context.Context, cfg config.Config, build Builder, notify func(string, any)) (domain.RunOutcome, error) {
	h, cleanup, err := build(cfg, notify)
	if err != nil {
		return domain.RunOutcome{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	return h.Run(ctx)
}
