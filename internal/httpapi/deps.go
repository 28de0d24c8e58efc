package httpapi

import (
	"context"
	"database/sql"
	"sync/atomic"

	"jobharvest-engine/internal/config"
	"jobharvest-engine/internal/events"
	"jobharvest-engine/internal/logger"
	"jobharvest-engine/internal/scrape/types"
	"jobharvest-engine/internal/status"
)

// HarvestRunner is the background harvest control surface. *poll.Runner
// implements it.
type HarvestRunner interface {
	Status() types.HarvestStatus
	Start(ctx context.Context, reqID string, fresh bool) bool
}

type Deps struct {
	DB *sql.DB

	Hub *events.Hub

	// Atomic store
	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	// Run summaries (Redis or in-memory)
	Status status.Store

	Harvest HarvestRunner
	// BaseCtx bounds harvests started over HTTP; cancelling it stops them.
	BaseCtx context.Context

	// Session cookie persistence (inject for testability)
	SetSession   func(account, cookie string) error
	ClearSession func(account string) error

	Log *logger.Logger
}
