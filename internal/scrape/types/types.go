package types

import (
	"context"
	"encoding/json"

	"jobharvest-engine/internal/domain"
)

// PageResult is what one FetchNextPage call yields. EndMarker means the feed
// signalled exhaustion; Items is then usually empty.
type PageResult struct {
	Items     []domain.ListingStub
	EndMarker bool
}

// PagedFeed is the listing side of an authenticated feed session.
type PagedFeed interface {
	Name() string
	FetchNextPage(ctx context.Context) (PageResult, error)
	// AccumulatedCount is the number of listing items the session has
	// received so far. It is polled to detect stalls.
	AccumulatedCount(ctx context.Context) (int, error)
}

// DetailFetcher fetches the raw detail payload for one listing id. A missing
// resource is reported with an error wrapping domain.ErrNotFound.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, id string) (json.RawMessage, error)
}

// HarvestStatus is the live status of the background harvest runner.
type HarvestStatus struct {
	LastRunAt     string `json:"last_run_at"`
	LastOkAt      string `json:"last_ok_at"`
	LastError     string `json:"last_error"`
	LastRunID     string `json:"last_run_id"`
	CollectStatus string `json:"collect_status"`
	LastRecords   int    `json:"last_records"`
	LastFailures  int    `json:"last_failures"`
	Running       bool   `json:"running"`
}
